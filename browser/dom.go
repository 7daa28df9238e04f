package browser

import (
	"strconv"
	"strings"

	"github.com/martinemde/webpilot/agentloop"
)

// idAttribute marks interactive elements with the number the agent refers to.
const idAttribute = "data-agent-id"

// visibleNode is one entry of the simplified viewport, in document order.
type visibleNode struct {
	ID   int    `json:"id"`
	Kind string `json:"kind"` // text, link, button, input, select
	Text string `json:"text"`
}

// scrollMetrics is the raw viewport geometry reported by the page.
type scrollMetrics struct {
	ScrollY      float64 `json:"scrollY"`
	ScrollHeight float64 `json:"scrollHeight"`
	InnerHeight  float64 `json:"innerHeight"`
}

func (m scrollMetrics) progress() agentloop.ScrollProgress {
	fraction := 0.0
	if scrollable := m.ScrollHeight - m.InnerHeight; scrollable > 0 {
		fraction = m.ScrollY / scrollable
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return agentloop.ScrollProgress{Fraction: fraction, Offset: int(m.ScrollY), Total: int(m.ScrollHeight)}
}

// renderNodes formats the simplified viewport, one node per line.
func renderNodes(nodes []visibleNode) string {
	var sb strings.Builder
	for _, n := range nodes {
		text := strings.Join(strings.Fields(n.Text), " ")
		if n.Kind == "text" {
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(text)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("<" + n.Kind + " id=" + strconv.Itoa(n.ID) + ">")
		sb.WriteString(text)
		sb.WriteString("</" + n.Kind + ">")
	}
	return sb.String()
}

const scrollMetricsJS = `() => JSON.stringify({
	scrollY: window.scrollY,
	scrollHeight: document.documentElement.scrollHeight,
	innerHeight: window.innerHeight,
})`

// simplifyJS walks the DOM in order, keeps what intersects the viewport and
// numbers interactive elements through the id attribute passed as attr.
const simplifyJS = `(attr) => {
	for (const el of document.querySelectorAll('[' + attr + ']')) el.removeAttribute(attr);
	if (!document.body) return '[]';

	const vw = window.innerWidth, vh = window.innerHeight;
	const visible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0 && r.bottom > 0 && r.right > 0 && r.top < vh && r.left < vw;
	};
	const kindOf = (el) => {
		const tag = el.tagName.toLowerCase();
		const role = (el.getAttribute('role') || '').toLowerCase();
		if (tag === 'a' && el.hasAttribute('href')) return 'link';
		if (tag === 'button' || role === 'button') return 'button';
		if (tag === 'input') {
			const type = (el.getAttribute('type') || 'text').toLowerCase();
			if (type === 'hidden') return null;
			if (['submit', 'button', 'reset', 'image'].includes(type)) return 'button';
			return 'input';
		}
		if (tag === 'textarea') return 'input';
		if (tag === 'select') return 'select';
		if (role === 'link') return 'link';
		if (el.hasAttribute('onclick')) return 'button';
		return null;
	};
	const labelOf = (el, kind) => {
		if (kind === 'input') {
			return el.value || el.getAttribute('placeholder') || el.getAttribute('aria-label') || el.getAttribute('name') || '';
		}
		if (kind === 'select') {
			const opt = el.options[el.selectedIndex];
			return opt ? opt.text : '';
		}
		return el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('title') || '';
	};

	const skip = new Set(['script', 'style', 'noscript', 'template', 'svg', 'head']);
	const nodes = [];
	let next = 1;
	const walk = (el) => {
		for (const child of el.childNodes) {
			if (child.nodeType === Node.TEXT_NODE) {
				const text = child.textContent.trim();
				if (!text) continue;
				const range = document.createRange();
				range.selectNodeContents(child);
				const r = range.getBoundingClientRect();
				if (r.bottom > 0 && r.top < vh && r.width > 0) nodes.push({ id: 0, kind: 'text', text });
				continue;
			}
			if (child.nodeType !== Node.ELEMENT_NODE) continue;
			if (skip.has(child.tagName.toLowerCase())) continue;
			const kind = kindOf(child);
			if (kind) {
				if (visible(child)) {
					const id = next++;
					child.setAttribute(attr, String(id));
					nodes.push({ id, kind, text: labelOf(child, kind) });
				}
				continue;
			}
			walk(child);
		}
	};
	walk(document.body);
	return JSON.stringify(nodes);
}`
