package api

const webUI = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>QR Label Print Server</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;background:#f5f5f5;color:#333;line-height:1.6}

/* Header */
.hdr{background:linear-gradient(135deg,#667eea 0%,#764ba2 100%);color:#fff;padding:14px 20px;display:flex;align-items:center;justify-content:space-between;position:sticky;top:0;z-index:100}
.hdr h1{font-size:18px;font-weight:600}
.hdr-dot{width:10px;height:10px;border-radius:50%;display:inline-block;margin-left:8px}
.dot-green{background:#22c55e}.dot-red{background:#ef4444}

/* Content */
.content{max-width:1100px;margin:0 auto;padding:20px;display:grid;grid-template-columns:340px 1fr;gap:16px}
.card{background:#fff;border-radius:8px;padding:20px;margin-bottom:16px;box-shadow:0 1px 3px rgba(0,0,0,.1)}
.card h2{font-size:16px;margin-bottom:12px;padding-bottom:8px;border-bottom:1px solid #eee}

/* Buttons */
.btn{display:inline-flex;align-items:center;gap:6px;padding:8px 16px;border-radius:6px;border:none;cursor:pointer;font-size:14px;font-weight:500;line-height:1.4}
.btn:disabled{opacity:.5;cursor:not-allowed}
.btn-primary{background:#667eea;color:#fff}.btn-primary:hover:not(:disabled){background:#5a67d8}
.btn-secondary{background:#e5e7eb;color:#374151}.btn-secondary:hover:not(:disabled){background:#d1d5db}
.btn-danger{background:#fff;color:#ef4444;border:1px solid #ef4444}
.btn-row{display:flex;gap:8px;flex-wrap:wrap;margin-top:12px}

/* Forms */
.form-group{margin-bottom:12px}
.form-group label{display:block;font-size:13px;font-weight:500;margin-bottom:4px;color:#555}
.form-group input,.form-group select{width:100%;padding:8px 12px;border:1px solid #ddd;border-radius:6px;font-size:14px}
.form-row{display:grid;grid-template-columns:1fr 1fr 1fr;gap:8px}

/* Preview */
#preview{overflow:auto;max-height:480px;border:1px dashed #ddd;padding:8px;background:#fafafa}
#preview .row{display:flex}
#preview img{display:block;object-fit:contain;border:1px solid #eee}
.empty{color:#888;text-align:center;padding:40px}

/* Table */
table{width:100%;border-collapse:collapse;font-size:13px}
th,td{border:1px solid #e5e7eb;padding:4px 6px;text-align:left}
th{background:#f9fafb;cursor:pointer;user-select:none}
th.select{cursor:default}
.qr-clip{width:40px;height:40px;overflow:hidden}
.qr-clip img{height:40px;clip-path:inset(0 50% 0 0)}
td img{height:40px}

#log{background:#1a1a2e;color:#a0aec0;padding:12px;border-radius:6px;font-family:monospace;font-size:12px;max-height:160px;overflow-y:auto}
</style>
</head>
<body>
<div class="hdr">
  <h1>QR Label Print Server</h1>
  <span>Live <span class="hdr-dot dot-red" id="live-dot"></span></span>
</div>

<div class="content">
<div>
  <div class="card">
    <h2>Single Label</h2>
    <div class="form-group"><label for="qr-code">QR Code</label><input id="qr-code" autocomplete="off"></div>
    <div class="form-group"><label for="caption">Custom Text</label><input id="caption" autocomplete="off"></div>
    <div class="form-group"><label for="quantity">Quantity</label><input id="quantity" type="number" min="1" value="1" disabled></div>
    <div class="btn-row">
      <button class="btn btn-primary" id="generate">Generate</button>
      <button class="btn btn-secondary" id="print-single" disabled>Print</button>
    </div>
  </div>

  <div class="card">
    <h2>Bulk Labels</h2>
    <div class="form-group"><label for="file">Sheet (.xlsx, .csv, .parquet)</label><input id="file" type="file" accept=".xlsx,.xlsm,.csv,.parquet"></div>
    <div class="btn-row">
      <button class="btn btn-primary" id="bulk-generate">Generate All</button>
      <button class="btn btn-secondary" id="print-bulk" disabled>Print All</button>
      <button class="btn btn-danger" id="reset">Reset</button>
    </div>
  </div>

  <div class="card">
    <h2>Layout</h2>
    <div class="form-group"><label for="page-size">Page Size</label>
      <select id="page-size"><option>SMALL</option><option>MEDIUM</option><option selected>LARGE</option></select></div>
    <div class="form-row">
      <div class="form-group"><label for="width">Width mm</label><input id="width" type="number" min="0" step="any"></div>
      <div class="form-group"><label for="height">Height mm</label><input id="height" type="number" min="0" step="any"></div>
      <div class="form-group"><label for="per-row">Per Row</label><input id="per-row" type="number" min="0"></div>
    </div>
    <button class="btn btn-secondary" id="apply-layout">Apply</button>
  </div>

  <div class="card">
    <h2>Printers</h2>
    <div class="form-group"><select id="printer"></select></div>
    <div class="btn-row">
      <button class="btn btn-secondary" id="direct-print">Send to Printer</button>
      <button class="btn btn-secondary" id="test-printer">Test Printer</button>
    </div>
  </div>
</div>

<div>
  <div class="card">
    <h2>Preview <small id="tile-count"></small></h2>
    <div id="preview"><div class="empty">No labels generated</div></div>
  </div>

  <div class="card" id="table-card" style="display:none">
    <h2>QR Details</h2>
    <div class="form-row" style="grid-template-columns:1fr auto auto">
      <select id="columns" multiple size="3"></select>
      <button class="btn btn-secondary" id="apply-columns">Show Columns</button>
      <a class="btn btn-secondary" href="/api/table/export.csv">Export CSV</a>
    </div>
    <div class="btn-row"><button class="btn btn-primary" id="print-selected" disabled>Print Selected</button></div>
    <div style="overflow:auto;max-height:420px;margin-top:12px"><table id="details"></table></div>
  </div>

  <div class="card"><h2>Activity</h2><div id="log"></div></div>
</div>
</div>

<script>
const $ = id => document.getElementById(id);

function log(message) {
  const el = $('log');
  const entry = document.createElement('div');
  entry.textContent = '[' + new Date().toLocaleTimeString() + '] ' + message;
  el.appendChild(entry);
  el.scrollTop = el.scrollHeight;
}

async function call(method, url, body) {
  const opts = { method };
  if (body instanceof FormData) {
    opts.body = body;
  } else if (body !== undefined) {
    opts.headers = { 'Content-Type': 'application/json' };
    opts.body = JSON.stringify(body);
  }
  const res = await fetch(url, opts);
  const data = await res.json().catch(() => ({}));
  if (!res.ok) throw new Error(data.error || res.statusText);
  return data;
}

function text(s) {
  const d = document.createElement('div');
  d.textContent = s == null ? '' : String(s);
  return d.innerHTML;
}

let shownVersion = 0;

function paint(v) {
  if (v.version < shownVersion) return;
  shownVersion = v.version;
  const c = v.controls;
  $('quantity').disabled = !c.quantity_input;
  $('print-single').disabled = !c.print_single;
  $('print-bulk').disabled = !c.print_bulk;
  $('print-selected').disabled = !c.print_selected;
  $('generate').disabled = !c.generate;
  $('bulk-generate').disabled = !c.bulk_generate;
  $('file').disabled = !c.file_input;
  $('quantity').value = v.quantity;
  $('page-size').value = v.layout.page_size || 'LARGE';
  $('width').value = v.layout.width_mm || '';
  $('height').value = v.layout.height_mm || '';
  $('per-row').value = v.layout.per_row || '';
  $('tile-count').textContent = v.tile_count ? '(' + v.tile_count + ' labels)' : '';

  const rows = v.rows || [];
  $('preview').innerHTML = rows.length === 0 ? '<div class="empty">No labels generated</div>' :
    rows.map(r => '<div class="row">' + r.map(t =>
      '<img src="/api/images/' + t.image_ref + '" alt="' + text(t.qr_code) +
      '" style="width:' + t.width_mm + 'mm;height:' + t.height_mm + 'mm">').join('') + '</div>').join('');

  paintTable(v.table);
}

function paintTable(t) {
  $('table-card').style.display = t ? '' : 'none';
  if (!t) return;

  $('columns').innerHTML = t.discovered.map(c =>
    '<option' + (t.extra.includes(c) ? ' selected' : '') + '>' + text(c) + '</option>').join('');

  const head = t.columns.map(c => {
    if (c === 'select') {
      return '<th class="select"><input type="checkbox" id="select-all"' + (t.all_selected ? ' checked' : '') + '></th>';
    }
    const arrow = t.sort_column === c ? (t.ascending ? ' ▲' : ' ▼') : '';
    return '<th data-sort="' + text(c) + '">' + text(c.replace(/_/g, ' ').toUpperCase()) + arrow + '</th>';
  }).join('');

  const body = t.rows.map(r => {
    const img = '<img src="/api/images/' + r.record.image_ref + '" alt="' + text(r.record.qr_code) + '">';
    const cells = r.cells.slice(1).map(v => '<td>' + text(v) + '</td>').join('');
    return '<tr><td><input type="checkbox" data-row="' + r.index + '"' + (r.selected ? ' checked' : '') + '></td>' +
      '<td>' + (r.clip_caption ? '<div class="qr-clip">' + img + '</div>' : img) + '</td>' + cells + '</tr>';
  }).join('');

  $('details').innerHTML = '<thead><tr>' + head + '</tr></thead><tbody>' + body + '</tbody>';
}

async function act(fn) {
  try {
    paint(await fn());
  } catch (err) {
    alert(err.message);
    log(err.message);
  }
}

$('generate').onclick = async () => {
  try {
    paint(await call('POST', '/api/single', { qr_code: $('qr-code').value, custom_text: $('caption').value }));
    log('Label generated');
  } catch (err) {
    $('caption').value = '';
    alert(err.message);
    log(err.message);
  }
};

$('bulk-generate').onclick = () => act(async () => {
  const file = $('file').files[0];
  if (!file) throw new Error('Please upload an Excel file.');
  const form = new FormData();
  form.append('file', file);
  const v = await call('POST', '/api/bulk', form);
  log('Bulk labels generated');
  return v;
});

$('file').onchange = () => act(() => call('POST', '/api/file-selected'));
$('reset').onclick = () => act(async () => {
  const v = await call('POST', '/api/reset');
  $('file').value = '';
  $('qr-code').value = '';
  $('caption').value = '';
  alert('All data has been reset.');
  return v;
});
$('quantity').onchange = () => act(() => call('PUT', '/api/quantity', { quantity: parseInt($('quantity').value, 10) || 1 }));
$('page-size').onchange = () => act(() => call('PUT', '/api/page-size', { page_size: $('page-size').value }));
$('apply-layout').onclick = () => act(() => call('PUT', '/api/layout', {
  width_mm: parseFloat($('width').value) || 0,
  height_mm: parseFloat($('height').value) || 0,
  per_row: parseInt($('per-row').value, 10) || 0,
  page_size: $('page-size').value,
}));
$('apply-columns').onclick = () => act(() => call('PUT', '/api/table/columns', {
  columns: Array.from($('columns').selectedOptions).map(o => o.value),
}));

$('details').onclick = e => {
  const sort = e.target.closest('th[data-sort]');
  if (sort) act(() => call('POST', '/api/table/sort/' + encodeURIComponent(sort.dataset.sort)));
};
$('details').onchange = e => {
  if (e.target.id === 'select-all') {
    act(() => call('PUT', '/api/table/selection', { all: e.target.checked }));
  } else if (e.target.dataset.row !== undefined) {
    act(() => call('PUT', '/api/table/selection', { index: parseInt(e.target.dataset.row, 10), selected: e.target.checked }));
  }
};

$('print-single').onclick = () => window.open('/print/labels', '_blank');
$('print-bulk').onclick = () => window.open('/print/labels', '_blank');
$('print-selected').onclick = () => window.open('/print/table', '_blank');

async function refreshPrinters() {
  try {
    const data = await call('GET', '/api/printers');
    $('printer').innerHTML = data.printers.map(p =>
      '<option value="' + text(p.id) + '">' + text(p.name) + ' (' + p.status + ')</option>').join('');
  } catch (err) {
    log('Error refreshing printers: ' + err.message);
  }
}

$('test-printer').onclick = async () => {
  const id = $('printer').value;
  if (!id) { window.open('/print/test', '_blank'); return; }
  try {
    await call('POST', '/api/printers/' + encodeURIComponent(id) + '/test');
    log('Test print sent');
  } catch (err) {
    log('Test print failed: ' + err.message);
  }
};

$('direct-print').onclick = async () => {
  const id = $('printer').value;
  if (!id) { alert('No printer configured.'); return; }
  try {
    const data = await call('POST', '/api/printers/' + encodeURIComponent(id) + '/print');
    log('Printed ' + data.tiles + ' labels');
  } catch (err) {
    alert(err.message);
    log('Print failed: ' + err.message);
  }
};

function connect() {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/events');
  ws.onopen = () => { $('live-dot').className = 'hdr-dot dot-green'; };
  ws.onmessage = e => {
    const ev = JSON.parse(e.data);
    if (ev.type === 'state') paint(ev.data);
  };
  ws.onclose = () => {
    $('live-dot').className = 'hdr-dot dot-red';
    setTimeout(connect, 3000);
  };
}

call('GET', '/api/state').then(paint).catch(err => log(err.message));
refreshPrinters();
connect();
</script>
</body>
</html>`
