package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Probe identifies an element by CSS selector, optionally narrowed to
// elements whose text content contains Text. The Text form covers cases a
// plain selector cannot express, like a button distinguished only by its
// label.
type Probe struct {
	Name     string
	Selector string
	Text     string
}

func Css(name, selector string) Probe {
	return Probe{Name: name, Selector: selector}
}

func WithText(name, selector, text string) Probe {
	return Probe{Name: name, Selector: selector, Text: text}
}

func probeNames(probes []Probe) string {
	names := make([]string, len(probes))
	for i, p := range probes {
		names[i] = p.Name
	}
	return strings.Join(names, "|")
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// findScript yields a JS expression resolving to the first visible element
// matched by the probe, or null.
func findScript(p Probe) string {
	return fmt.Sprintf(
		`(() => {
	for (const el of document.querySelectorAll(%s)) {
		if (%s && !(el.textContent || "").includes(%s)) continue;
		if (el.getClientRects().length > 0) return el;
	}
	return null;
})()`,
		jsString(p.Selector), jsString(p.Text), jsString(p.Text))
}

func visibleScript(p Probe) string {
	return fmt.Sprintf(`(%s) !== null`, findScript(p))
}

func clickScript(p Probe) string {
	return fmt.Sprintf(
		`(() => {
	const el = %s;
	if (!el) return false;
	el.click();
	return true;
})()`, findScript(p))
}

// raceScript resolves to the name of the first probe matching a visible
// element, or false while none do. Used with a polling wait.
func raceScript(probes []Probe) string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	for _, p := range probes {
		fmt.Fprintf(&b, "\tif ((%s) !== null) return %s;\n", findScript(p), jsString(p.Name))
	}
	b.WriteString("\treturn false;\n})()")
	return b.String()
}

func selectScript(sel, value string) string {
	return fmt.Sprintf(
		`(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	if (![...el.options].some(o => o.value === %s)) return false;
	el.value = %s;
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return true;
})()`, jsString(sel), jsString(value), jsString(value))
}

func textContentScript(sel string) string {
	return fmt.Sprintf(
		`(() => {
	const el = document.querySelector(%s);
	return el ? (el.textContent || "").trim() : "";
})()`, jsString(sel))
}

// tableRowsScript extracts image source plus per-cell text for every row.
// Cells prefer their first <span> descendant since the report wraps display
// values in spans nested under layout markup.
func tableRowsScript(tableSel string) string {
	return fmt.Sprintf(
		`(() => {
	const rows = [];
	for (const tr of document.querySelectorAll(%s + " tr")) {
		const img = tr.querySelector("td img");
		const cells = [];
		for (const td of tr.querySelectorAll("td")) {
			const span = td.querySelector("span");
			cells.push(((span ? span.textContent : td.textContent) || "").trim());
		}
		rows.push({ image: img ? (img.getAttribute("src") || "") : "", cells: cells });
	}
	return rows;
})()`, jsString(tableSel))
}

// firstRowChangedScript is true once the first row's text drifts from the
// pre-action snapshot, or once a row exists where none did.
func firstRowChangedScript(tableSel, before string) string {
	return fmt.Sprintf(
		`(() => {
	const el = document.querySelector(%s + " tr:first-child");
	if (!el) return %s !== "";
	return (el.textContent || "").trim() !== %s.trim();
})()`, jsString(tableSel), jsString(before), jsString(before))
}
