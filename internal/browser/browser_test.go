package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/otp-autofill/internal/model"
)

func TestConnectWithoutBrowser(t *testing.T) {
	_, err := Connect(context.Background(), model.BrowserConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoBrowser)
}

func TestConnectBadControlURL(t *testing.T) {
	_, err := Connect(context.Background(), model.BrowserConfig{ControlURL: "http://127.0.0.1:1"}, nil)
	assert.Error(t, err)
}
