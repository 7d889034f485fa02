package rodpage

// refAttr tags snapshot elements so later calls can find them again.
const refAttr = "data-otpfill-ref"

// snapshotJS returns one record per input, textarea and contenteditable
// element. Field names match target.Record's JSON tags.
const snapshotJS = `(refAttr) => {
	const root = document.documentElement;
	if (!root) return [];
	let next = Number(root.getAttribute('data-otpfill-next') || '0');
	const vw = window.innerWidth || root.clientWidth;
	const vh = window.innerHeight || root.clientHeight;
	const text = (el) => (el && el.textContent ? el.textContent.replace(/\s+/g, ' ').trim() : '');
	const out = [];

	for (const el of document.querySelectorAll('input, textarea, [contenteditable]')) {
		const editable = el.isContentEditable;
		if (el.tagName !== 'INPUT' && el.tagName !== 'TEXTAREA' && !editable) continue;

		let ref = el.getAttribute(refAttr);
		if (!ref) {
			ref = 'r' + (next++);
			el.setAttribute(refAttr, ref);
		}

		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		const visible = style.display !== 'none' &&
			style.visibility !== 'hidden' &&
			style.opacity !== '0' &&
			el.offsetWidth > 0 && el.offsetHeight > 0;

		let label = '';
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) label = text(l);
		}

		const nearby = [];
		let p = el.parentElement;
		for (let i = 0; i < 3 && p; i++) {
			nearby.push(text(p));
			p = p.parentElement;
		}
		if (el.parentElement) {
			for (const s of el.parentElement.children) {
				if (s !== el && s.tagName !== 'INPUT') nearby.push(text(s));
			}
		}

		out.push({
			ref: ref,
			tag: el.tagName.toLowerCase(),
			type: el.tagName === 'INPUT' ? (el.type || '') : '',
			id: el.id || '',
			name: el.getAttribute('name') || '',
			placeholder: el.getAttribute('placeholder') || '',
			class: typeof el.className === 'string' ? el.className : '',
			ariaLabel: el.getAttribute('aria-label') || '',
			dataTest: el.getAttribute('data-cy') || el.getAttribute('data-test') || '',
			autocomplete: el.getAttribute('autocomplete') || '',
			pattern: el.getAttribute('pattern') || '',
			inputMode: el.getAttribute('inputmode') || '',
			maxLength: el.maxLength > 0 ? el.maxLength : 0,
			value: editable ? (el.textContent || '') : (el.value || ''),
			labelText: label,
			nearbyText: nearby.join(' ').slice(0, 4000),
			rect: { left: rect.left, top: rect.top, width: rect.width, height: rect.height },
			inViewport: rect.top >= 0 && rect.left >= 0 && rect.bottom <= vh && rect.right <= vw,
			visible: visible,
			disabled: !!el.disabled,
			readOnly: !!el.readOnly,
			contentEditable: editable,
		});
	}

	root.setAttribute('data-otpfill-next', String(next));
	return out;
}`

// fillJS writes the value through plain assignment, the prototype setter
// that frameworks do not intercept, and the attribute, then fires the
// input lifecycle. It returns false when the element is gone.
const fillJS = `(refAttr, ref, value, keys) => {
	const el = document.querySelector('[' + refAttr + '="' + ref + '"]');
	if (!el) return false;

	const fire = (type) => {
		const ev = type.startsWith('key')
			? new KeyboardEvent(type, { bubbles: true, cancelable: true, key: value.slice(-1) })
			: new Event(type, { bubbles: true });
		el.dispatchEvent(ev);
	};

	el.focus();
	if (el.isContentEditable) {
		el.textContent = value;
	} else {
		el.value = value;
		const proto = el.tagName === 'TEXTAREA'
			? window.HTMLTextAreaElement.prototype
			: window.HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) desc.set.call(el, value);
		el.setAttribute('value', value);
	}

	fire('focus');
	fire('input');
	fire('change');
	if (keys) {
		fire('keydown');
		fire('keypress');
		fire('keyup');
	}
	fire('blur');
	return true;
}`

// indicateJS flashes fields, or shows a toast when refs is empty.
const indicateJS = `(refAttr, refs, kind) => {
	const ok = kind === 'filled';
	const flash = (el) => {
		const saved = {
			transition: el.style.transition,
			background: el.style.backgroundColor,
			borderColor: el.style.borderColor,
			outline: el.style.outline,
			transform: el.style.transform,
		};
		el.style.transition = 'all 0.3s ease';
		el.style.backgroundColor = ok ? 'rgba(84, 105, 212, 0.1)' : 'rgba(255, 99, 71, 0.08)';
		el.style.borderColor = ok ? 'rgba(84, 105, 212, 0.8)' : 'rgba(255, 99, 71, 0.5)';
		if (!ok) {
			el.style.outline = '1px solid rgba(255, 99, 71, 0.8)';
			[-2, 2, -2, 0].forEach((dx, i) => setTimeout(() => {
				el.style.transform = 'translateX(' + dx + 'px)';
			}, i * 100));
		}
		setTimeout(() => {
			el.style.transition = saved.transition;
			el.style.backgroundColor = saved.background;
			el.style.borderColor = saved.borderColor;
			el.style.outline = saved.outline;
			el.style.transform = saved.transform;
		}, ok ? 1000 : 1200);
	};

	let shown = 0;
	for (const ref of refs) {
		const el = document.querySelector('[' + refAttr + '="' + ref + '"]');
		if (el) {
			flash(el);
			shown++;
		}
	}
	if (shown > 0) return shown;

	let box = document.getElementById('otpfill-toast');
	if (!box) {
		box = document.createElement('div');
		box.id = 'otpfill-toast';
		box.setAttribute('role', 'status');
		Object.assign(box.style, { position: 'fixed', bottom: '20px', right: '20px', zIndex: '99999' });
		(document.body || document.documentElement).appendChild(box);
	}
	const toast = document.createElement('div');
	toast.textContent = ok
		? 'Verification code detected and applied'
		: 'No verification code found in the most recent email';
	Object.assign(toast.style, {
		background: ok ? '#4CAF50' : '#F44336',
		color: 'white',
		padding: '12px 16px',
		borderRadius: '4px',
		marginTop: '10px',
		boxShadow: '0 2px 5px rgba(0,0,0,0.2)',
		font: '14px sans-serif',
	});
	box.appendChild(toast);
	setTimeout(() => toast.remove(), 3500);
	return 0;
}`

// observerJS installs a MutationObserver that calls the exposed binding.
// %[1]q is the binding name.
const observerJS = `() => {
	const name = %[1]q;
	if (window.__otpfillObserver) window.__otpfillObserver.disconnect();
	const start = () => {
		const obs = new MutationObserver(() => {
			try { window[name](''); } catch (e) {}
		});
		obs.observe(document, {
			childList: true,
			subtree: true,
			attributes: true,
			attributeFilter: ['style', 'class', 'hidden', 'disabled'],
		});
		window.__otpfillObserver = obs;
	};
	start();
}`

const disconnectJS = `() => {
	if (window.__otpfillObserver) {
		window.__otpfillObserver.disconnect();
		window.__otpfillObserver = null;
	}
}`
