package chrome

// Scripts evaluated in pages. Every function returns a string or nothing so
// results can be read with Value.String.

// bootstrapJS installs the page listeners once per document and reports the
// document id and ready state as JSON.
const bootstrapJS = `() => {
  if (!window.__truthguard) {
    const tg = window.__truthguard = {
      doc: Math.random().toString(36).slice(2) + Date.now().toString(36),
      events: [],
    };
    const push = (e) => { if (tg.events.length < 256) tg.events.push(e); };
    document.addEventListener('contextmenu', (e) => push({type: 'contextmenu', x: e.pageX, y: e.pageY}));
    document.addEventListener('click', (e) => {
      const t = e.target && e.target.closest ? e.target : null;
      if (t && t.closest('#truthguard-context-menu')) { e.stopPropagation(); push({type: 'menu-check'}); return; }
      if (t && t.closest('[data-truthguard-dismiss]')) { push({type: 'dismiss'}); return; }
      push({type: 'click'});
    }, true);
    document.addEventListener('keydown', (e) => {
      if (e.altKey && e.shiftKey && (e.key === 'C' || e.key === 'c')) push({type: 'command', command: 'check-selected'});
    });
  }
  return JSON.stringify({doc: window.__truthguard.doc, ready: document.readyState});
}`

// drainJS empties the event queue.
const drainJS = `() => {
  const tg = window.__truthguard;
  return JSON.stringify(tg ? tg.events.splice(0) : []);
}`

const focusJS = `() => String(document.hasFocus())`

const showMenuJS = `(x, y, title) => {
  const old = document.getElementById('truthguard-context-menu');
  if (old) old.remove();
  const menu = document.createElement('div');
  menu.id = 'truthguard-context-menu';
  menu.style.cssText = 'position:absolute;z-index:10000;background:#fff;border:1px solid #ccc;border-radius:6px;' +
    'box-shadow:0 2px 8px rgba(0,0,0,.2);padding:6px 12px;cursor:pointer;font:14px system-ui,sans-serif;';
  menu.style.left = x + 'px';
  menu.style.top = y + 'px';
  menu.textContent = title;
  document.body.appendChild(menu);
}`

const hideMenuJS = `() => {
  const menu = document.getElementById('truthguard-context-menu');
  if (menu) menu.remove();
}`

const highlightJS = `(text, level) => {
  const colors = {low: '#c8f7d4', medium: '#fde2b8', high: '#f9c0bb'};
  const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
  for (let node = walker.nextNode(); node; node = walker.nextNode()) {
    const i = node.nodeValue.indexOf(text);
    if (i < 0 || (node.parentElement && node.parentElement.closest('#truthguard-overlay'))) continue;
    const range = document.createRange();
    range.setStart(node, i);
    range.setEnd(node, i + text.length);
    const mark = document.createElement('mark');
    mark.className = 'truthguard-highlight truthguard-' + level;
    mark.style.background = colors[level] || '#eee';
    range.surroundContents(mark);
    return;
  }
}`

// renderOverlayJS draws a panel view. Text is set with textContent only.
const renderOverlayJS = `(raw) => {
  const v = JSON.parse(raw);
  let panel = document.getElementById('truthguard-overlay');
  if (panel) panel.remove();
  panel = document.createElement('div');
  panel.id = 'truthguard-overlay';
  panel.style.cssText = 'position:fixed;top:20px;right:20px;width:340px;z-index:10001;background:#fff;' +
    'border-radius:10px;box-shadow:0 4px 16px rgba(0,0,0,.25);padding:14px;font:14px system-ui,sans-serif;color:#222;';
  const el = (tag, text, css) => {
    const n = document.createElement(tag);
    if (text) n.textContent = text;
    if (css) n.style.cssText = css;
    panel.appendChild(n);
    return n;
  };
  el('strong', 'TruthGuard', 'color:#7D56F4;font-size:16px;');
  const close = el('button', '×', 'float:right;border:none;background:none;font-size:18px;cursor:pointer;');
  close.setAttribute('data-truthguard-dismiss', '');
  if (v.state === 'loading') {
    el('p', 'Checking credibility...');
  } else if (v.state === 'error') {
    el('p', v.error, 'color:#c0392b;');
  } else {
    const colors = {low: '#27ae60', medium: '#e67e22', high: '#c0392b'};
    el('div', String(v.score), 'display:inline-block;width:48px;height:48px;line-height:48px;border-radius:50%;' +
      'text-align:center;color:#fff;font-weight:bold;background:' + (colors[v.level] || '#888') + ';');
    el('h3', v.label, 'margin:6px 0 0;');
    el('p', 'Credibility Score: ' + v.score + '/100', 'margin:2px 0;');
    if (v.category) el('p', 'Category: ' + v.category);
    if (v.explanation) el('p', v.explanation);
    if (v.tip) el('p', 'Verification Tip: ' + v.tip, 'font-style:italic;');
    if (v.flags && v.flags.length) el('p', 'Red Flags: ' + v.flags.join(', '));
    if (v.website) {
      const open = el('button', 'Open Full Website', 'margin-top:6px;');
      open.addEventListener('click', () => window.open(v.website, '_blank'));
    }
  }
  document.body.appendChild(panel);
}`

const retireOverlayJS = `() => {
  const panel = document.getElementById('truthguard-overlay');
  if (panel) panel.remove();
}`
