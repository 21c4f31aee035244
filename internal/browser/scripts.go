// internal/browser/scripts.go
package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// refAttr tags resolved elements so follow-up calls can find them again.
const refAttr = "data-linkrunner-ref"

// jsArg encodes v as a JavaScript literal.
func jsArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s=%q]`, refAttr, ref)
}

// queryScript resolves one candidate in the page and describes every match.
// Matching mirrors the offline snapshot driver: innermost element for text
// strategies, implicit ARIA roles, accessible name from aria-label, title,
// placeholder, then text.
const queryScript = `(function(q) {
  const SKIP = new Set(['HEAD', 'SCRIPT', 'STYLE', 'TEMPLATE', 'NOSCRIPT', 'META', 'LINK', 'TITLE']);
  const norm = s => String(s || '').replace(/\s+/g, ' ').trim();
  const lower = s => norm(s).toLowerCase();
  const tagOk = el => q.tag === '' || q.tag === '*' || el.tagName.toLowerCase() === q.tag;
  const textOf = el => {
    if (el.tagName === 'INPUT' && ['button', 'submit', 'reset'].includes(String(el.type).toLowerCase())) return norm(el.value);
    return norm(el.innerText !== undefined ? el.innerText : el.textContent);
  };
  const textMatch = t => q.strategy === 'exact-text' ? norm(t) === norm(q.pattern) : lower(t).includes(lower(q.pattern));
  const roleOf = el => {
    const explicit = (el.getAttribute('role') || '').trim().split(/\s+/)[0];
    if (explicit) return explicit.toLowerCase();
    const tag = el.tagName.toLowerCase();
    const type = String(el.getAttribute('type') || '').toLowerCase();
    if (tag === 'button') return 'button';
    if (tag === 'a' && el.hasAttribute('href')) return 'link';
    if (tag === 'textarea') return 'textbox';
    if (tag === 'select') return 'combobox';
    if (tag === 'dialog') return 'dialog';
    if (tag === 'input') {
      if (['button', 'submit', 'reset', 'image'].includes(type)) return 'button';
      if (type === 'checkbox' || type === 'radio') return type;
      if (['', 'text', 'email', 'password', 'search', 'tel', 'url'].includes(type)) return 'textbox';
    }
    return '';
  };
  const nameOf = el => norm(el.getAttribute('aria-label') || el.getAttribute('title') || el.getAttribute('placeholder') || textOf(el));
  const all = () => Array.from(document.querySelectorAll('*')).filter(el => !SKIP.has(el.tagName));

  let found = [];
  switch (q.strategy) {
  case 'css':
    found = Array.from(document.querySelectorAll(q.pattern));
    break;
  case 'xpath': {
    const r = document.evaluate(q.pattern, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (let i = 0; i < r.snapshotLength; i++) {
      const n = r.snapshotItem(i);
      if (n.nodeType === Node.ELEMENT_NODE) found.push(n);
    }
    break;
  }
  case 'exact-text':
  case 'contains-text': {
    const hits = all().filter(el => tagOk(el) && textMatch(textOf(el)));
    found = hits.filter(el => !hits.some(o => o !== el && el.contains(o)));
    break;
  }
  case 'placeholder':
    found = all().filter(el => tagOk(el) && el.hasAttribute('placeholder') && lower(el.getAttribute('placeholder')).includes(lower(q.pattern)));
    break;
  case 'role':
    found = all().filter(el => roleOf(el) === q.role && lower(nameOf(el)).includes(lower(q.pattern)));
    break;
  default:
    throw new Error('unsupported strategy ' + q.strategy);
  }

  return found.map(el => {
    let ref = el.getAttribute('` + refAttr + `');
    if (!ref) {
      window.__linkrunnerSeq = (window.__linkrunnerSeq || 0) + 1;
      ref = String(window.__linkrunnerSeq);
      el.setAttribute('` + refAttr + `', ref);
    }
    const r = el.getBoundingClientRect();
    const st = window.getComputedStyle(el);
    return {
      ref: ref,
      tag: el.tagName.toLowerCase(),
      text: textOf(el).slice(0, 200),
      rect: {x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height},
      visible: r.width > 0 && r.height > 0 && st.display !== 'none' && st.visibility !== 'hidden' && st.opacity !== '0',
      enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true' && !el.closest('fieldset[disabled]'),
    };
  });
})(%s)`

// pointScript scrolls the element into view and returns its centre in
// viewport coordinates, optionally hit-testing that point.
const pointScript = `(function(sel, hitTest) {
  const el = document.querySelector(sel);
  if (!el) return {found: false};
  el.scrollIntoView({block: 'center', inline: 'center'});
  const r = el.getBoundingClientRect();
  const x = r.left + r.width / 2, y = r.top + r.height / 2;
  let hit = true;
  if (hitTest) {
    const top = document.elementFromPoint(x, y);
    hit = !!top && (top === el || el.contains(top));
  }
  return {found: true, x: x, y: y, hit: hit};
})(%s, %t)`

const scriptClickScript = `(function(sel) {
  const el = document.querySelector(sel);
  if (!el) return false;
  el.click();
  return true;
})(%s)`

const clearScript = `(function(sel) {
  const el = document.querySelector(sel);
  if (!el) return false;
  el.focus();
  if ('value' in el) {
    el.value = '';
  } else if (el.isContentEditable) {
    el.textContent = '';
  }
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})(%s)`

const valueScript = `(function(sel) {
  const el = document.querySelector(sel);
  if (!el) return null;
  if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement || el instanceof HTMLSelectElement) return el.value;
  return String(el.innerText || el.textContent || '').trim();
})(%s)`

const textScript = `document.body ? document.body.innerText : ''`

const capturedClipboardScript = `String(window.__linkrunnerClipboard || '')`

const readClipboardScript = `navigator.clipboard.readText()`

const clearClipboardScript = `(async () => {
  window.__linkrunnerClipboard = '';
  try {
    if (navigator.clipboard && navigator.clipboard.writeText) await navigator.clipboard.writeText('');
  } catch (e) {}
  window.__linkrunnerClipboard = '';
  return true;
})()`

// clipboardHook records every clipboard write the page makes, so copy
// buttons can be read back even where the async clipboard API is denied.
const clipboardHook = `(() => {
  if (window.__linkrunnerClipboardHooked) return;
  window.__linkrunnerClipboardHooked = true;
  window.__linkrunnerClipboard = '';
  const remember = t => { try { window.__linkrunnerClipboard = String(t); } catch (e) {} };
  if (navigator.clipboard && navigator.clipboard.writeText) {
    const write = navigator.clipboard.writeText.bind(navigator.clipboard);
    navigator.clipboard.writeText = t => { remember(t); return write(t).catch(() => undefined); };
  }
  if (window.DataTransfer) {
    const setData = DataTransfer.prototype.setData;
    DataTransfer.prototype.setData = function(type, data) {
      if (String(type).toLowerCase().startsWith('text')) remember(data);
      return setData.call(this, type, data);
    };
  }
  const exec = document.execCommand.bind(document);
  document.execCommand = function(cmd, ...rest) {
    if (String(cmd).toLowerCase() === 'copy') {
      const a = document.activeElement;
      if (a && typeof a.value === 'string' && typeof a.selectionStart === 'number') {
        remember(a.value.substring(a.selectionStart, a.selectionEnd));
      } else {
        const s = document.getSelection();
        if (s) remember(s.toString());
      }
    }
    return exec(cmd, ...rest);
  };
})();`

const captureOriginScript = `(function() {
  const items = [];
  try {
    for (let i = 0; i < localStorage.length; i++) {
      const k = localStorage.key(i);
      items.push({name: k, value: localStorage.getItem(k)});
    }
  } catch (e) {}
  return {origin: location.origin, localStorage: items};
})()`

// restoreStorageScript seeds localStorage for one origin on every new
// document without overwriting values the page already wrote.
const restoreStorageScript = `(function(origin, items) {
  if (location.origin !== origin) return;
  try {
    for (const it of items) {
      if (localStorage.getItem(it.name) === null) localStorage.setItem(it.name, it.value);
    }
  } catch (e) {}
})(%s, %s);`
