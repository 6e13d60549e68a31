package browser

import (
	"encoding/json"
	"fmt"
)

// searchMarker tags the search box chosen by FindSearchBox so later actions
// address the same element.
const searchMarker = "data-tenderwatch-target"

// SearchBoxSelector addresses the element tagged by FindSearchBox.
const SearchBoxSelector = "[" + searchMarker + "='search']"

// visibleFn is shared by scripts that must ignore hidden elements.
const visibleFn = `function visible(el) {
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`

const disabledFn = `function disabled(el) {
	if (el.disabled || el.hasAttribute('disabled')) return true;
	if ((el.getAttribute('aria-disabled') || '').toLowerCase() === 'true') return true;
	return el.classList.contains('disabled');
}`

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func existsScript(selector string) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
}

func rowsScript(selector string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(el => ({
	html: el.outerHTML,
	text: el.innerText || ''
}))`, jsString(selector))
}

func firstHTMLScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = document.querySelector(%s);
	return el ? el.outerHTML : '';
})()`, jsString(selector))
}

func clickScript(selector string) string {
	return fmt.Sprintf(`(() => {
	%s
	%s
	for (const el of document.querySelectorAll(%s)) {
		if (!visible(el) || disabled(el)) continue;
		el.scrollIntoView({block: 'center'});
		el.click();
		return true;
	}
	return false;
})()`, visibleFn, disabledFn, jsString(selector))
}

func markSearchScript(selector string) string {
	return fmt.Sprintf(`(() => {
	%s
	for (const el of document.querySelectorAll(%s)) {
		if (!visible(el)) continue;
		document.querySelectorAll('[%s]').forEach(old => old.removeAttribute('%s'));
		el.setAttribute('%s', 'search');
		return true;
	}
	return false;
})()`, visibleFn, jsString(selector), searchMarker, searchMarker, searchMarker)
}

func selectOptionScript(selector, label string) string {
	return fmt.Sprintf(`(() => {
	%s
	const want = %s.trim().toLowerCase();
	for (const el of document.querySelectorAll(%s)) {
		if (!visible(el)) continue;
		if (el.tagName === 'SELECT') {
			for (const opt of el.options) {
				if (opt.text.trim().toLowerCase() === want) {
					el.value = opt.value;
					el.dispatchEvent(new Event('input', {bubbles: true}));
					el.dispatchEvent(new Event('change', {bubbles: true}));
					return true;
				}
			}
			continue;
		}
		const candidates = [el, ...el.querySelectorAll('label, a, button, [role="option"]')];
		for (const c of candidates) {
			if ((c.innerText || '').trim().toLowerCase() === want && visible(c)) {
				c.click();
				return true;
			}
		}
	}
	return false;
})()`, visibleFn, jsString(label), jsString(selector))
}
