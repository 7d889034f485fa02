package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/otp-autofill/internal/model"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(1)
	b, unsubB := bus.Subscribe(1)
	defer unsubA()
	defer unsubB()

	bus.Publish(FillCode("482913"))

	assert.Equal(t, FillCode("482913"), <-a)
	assert.Equal(t, FillCode("482913"), <-b)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Status(model.CheckChecking, ""))
	bus.Publish(Status(model.CheckCodeFound, "")) // dropped

	assert.Equal(t, model.CheckChecking, (<-ch).Status)
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %+v", m)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)

	bus.Publish(NoCodeFound("")) // must not panic on the closed channel
}

func TestCloseBus(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	bus.Close()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := bus.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestMessageJSON(t *testing.T) {
	data, err := json.Marshal(FillCode("K7QX2M"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"fillCode","code":"K7QX2M"}`, string(data))

	data, err = json.Marshal(Status(model.CheckNoEmails, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"checkingStatus","status":"noEmails"}`, string(data))
}
