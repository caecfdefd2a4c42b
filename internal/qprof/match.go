package qprof

import (
	"fmt"
	"strings"
)

// frameWalkJS collects every same-origin document reachable from the top
// window, depth first. The import surface is composed of nested frames and
// the file input rarely lives in the same frame as its trigger.
const frameWalkJS = `
function __docs() {
	var acc = [];
	function walk(win) {
		try { void win.document; } catch (e) { return; }
		acc.push(win.document);
		for (var i = 0; i < win.frames.length; i++) { walk(win.frames[i]); }
	}
	walk(window);
	return acc;
}`

// matchLabel applies the UI label policy: a case-sensitive exact match on the
// trimmed text wins, otherwise the first label containing the target is taken.
// The fallback tolerates minor label drift in the target UI without
// over-matching.
func matchLabel(labels []string, target string) (int, bool) {
	for i, l := range labels {
		if strings.TrimSpace(l) == target {
			return i, true
		}
	}
	for i, l := range labels {
		if l != "" && strings.Contains(l, target) {
			return i, true
		}
	}
	return -1, false
}

// contextOption is one entry in the operating-context selection list.
type contextOption struct {
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// matchContext finds the operating context to switch to. The search is
// case-insensitive and skips entries already rendered as selected, so the
// active context is never reselected.
func matchContext(opts []contextOption, target string) (int, bool) {
	want := strings.ToLower(strings.TrimSpace(target))
	if want == "" {
		return -1, false
	}
	for i, o := range opts {
		if o.Selected {
			continue
		}
		text := strings.ToLower(strings.TrimSpace(o.Text))
		if text != "" && strings.Contains(text, want) {
			return i, true
		}
	}
	return -1, false
}

// dumpLabels renders up to maxLabelDump plausible menu labels for the audit
// log when a navigation target cannot be found.
func dumpLabels(labels []string) string {
	var out []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || len(l) >= 50 {
			continue
		}
		out = append(out, l)
		if len(out) == maxLabelDump {
			break
		}
	}
	return strings.Join(out, " | ")
}

// collectLabelsJS returns a script yielding the trimmed text of every element
// matching selector across all frames, in document order. Empty texts are kept
// so indices stay aligned with clickNthJS.
func collectLabelsJS(selector string) string {
	return fmt.Sprintf(`(function(){%s
var out = [];
var docs = __docs();
for (var d = 0; d < docs.length; d++) {
	var els = docs[d].querySelectorAll(%q);
	for (var i = 0; i < els.length; i++) {
		out.push((els[i].textContent || '').trim());
	}
}
return out;})()`, frameWalkJS, selector)
}

// clickNthJS returns a script clicking the index-th element matching selector,
// counted in the same cross-frame order as collectLabelsJS.
func clickNthJS(selector string, index int) string {
	return fmt.Sprintf(`(function(){%s
var n = 0;
var docs = __docs();
for (var d = 0; d < docs.length; d++) {
	var els = docs[d].querySelectorAll(%q);
	for (var i = 0; i < els.length; i++) {
		if (n === %d) { els[i].click(); return true; }
		n++;
	}
}
return false;})()`, frameWalkJS, selector, index)
}

// clickActionJS returns a script clicking the first button-like element whose
// value or text equals label, searching all frames. Legacy ASP.NET pages mix
// input[type=button], input[type=submit] and real buttons.
func clickActionJS(label string) string {
	return fmt.Sprintf(`(function(){%s
var docs = __docs();
for (var d = 0; d < docs.length; d++) {
	var btns = docs[d].querySelectorAll('input[type="button"], input[type="submit"], button');
	for (var i = 0; i < btns.length; i++) {
		var v = btns[i].value || '';
		var t = (btns[i].textContent || '').trim();
		if (v === %q || t === %q) { btns[i].click(); return true; }
	}
}
return false;})()`, frameWalkJS, label, label)
}

// collectContextOptionsJS returns a script yielding the label and selected
// state of every link in the context-selection list, across all frames.
func collectContextOptionsJS() string {
	return fmt.Sprintf(`(function(){%s
var out = [];
var docs = __docs();
for (var d = 0; d < docs.length; d++) {
	var links = docs[d].querySelectorAll('a');
	for (var i = 0; i < links.length; i++) {
		var el = links[i];
		var cls = String(el.className || '').toLowerCase();
		var selected = cls.indexOf('selected') >= 0 || el.getAttribute('aria-selected') === 'true';
		out.push({text: (el.textContent || '').trim(), selected: selected});
	}
}
return out;})()`, frameWalkJS)
}

// selectDatePromptJS returns a script that looks for a follow-up selection
// surface offering date-shaped options, picks the first one and fires change.
// Returns false when no such prompt is present.
const selectDatePromptJS = `(function(){` + frameWalkJS + `
var dateRe = /\d{1,2}\/\d{1,2}\/\d{2,4}/;
var docs = __docs();
for (var d = 0; d < docs.length; d++) {
	var sels = docs[d].querySelectorAll('select');
	for (var i = 0; i < sels.length; i++) {
		var sel = sels[i];
		for (var j = 0; j < sel.options.length; j++) {
			if (dateRe.test(sel.options[j].textContent || '')) {
				sel.selectedIndex = j;
				sel.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
	}
}
return false;})()`

// findResultRowJS returns a script scanning the results table for a row
// containing fileName and yielding its second cell, the assigned QPROF number.
func findResultRowJS(fileName string) string {
	return fmt.Sprintf(`(function(){
var rows = document.querySelectorAll('tr');
for (var i = 0; i < rows.length; i++) {
	if (String(rows[i].textContent || '').indexOf(%q) >= 0) {
		var cells = rows[i].querySelectorAll('td');
		if (cells.length > 1) { return (cells[1].textContent || '').trim(); }
	}
}
return '';})()`, fileName)
}
