package worker

// helperLibrarySource is the small pure-function library exposed to user
// code (spec §4.4): pick/first/count/sum/table, operating on arrays of
// records. Implemented as plain JavaScript rather than Go-bound natives —
// these are simple, allocation-light, and easiest to keep exactly pure by
// writing them in the language they run in.
const helperLibrarySource = `
(function() {
  'use strict';

  function getPath(obj, path) {
    var parts = path.split('.');
    var cur = obj;
    for (var i = 0; i < parts.length; i++) {
      if (cur === null || cur === undefined) return undefined;
      cur = cur[parts[i]];
    }
    return cur;
  }

  function pick(array, fieldPaths) {
    if (!Array.isArray(array)) return [];
    return array.map(function(item) {
      var out = {};
      for (var i = 0; i < fieldPaths.length; i++) {
        var path = fieldPaths[i];
        out[path] = getPath(item, path);
      }
      return out;
    });
  }

  function first(array, n) {
    if (!Array.isArray(array)) return [];
    return array.slice(0, n === undefined ? 1 : n);
  }

  function count(array, field) {
    if (!Array.isArray(array)) return 0;
    if (field === undefined) return array.length;
    var seen = {};
    var n = 0;
    for (var i = 0; i < array.length; i++) {
      var v = getPath(array[i], field);
      var key = JSON.stringify(v);
      if (!seen[key]) { seen[key] = true; n++; }
    }
    return n;
  }

  function sum(array, field) {
    if (!Array.isArray(array)) return 0;
    var total = 0;
    for (var i = 0; i < array.length; i++) {
      var v = field === undefined ? array[i] : getPath(array[i], field);
      total += (typeof v === 'number') ? v : 0;
    }
    return total;
  }

  function table(array, maxRows) {
    if (!Array.isArray(array)) return [];
    return array.slice(0, maxRows === undefined ? 10 : maxRows);
  }

  Object.defineProperty(globalThis, 'pick', { value: pick, writable: false, configurable: false, enumerable: true });
  Object.defineProperty(globalThis, 'first', { value: first, writable: false, configurable: false, enumerable: true });
  Object.defineProperty(globalThis, 'count', { value: count, writable: false, configurable: false, enumerable: true });
  Object.defineProperty(globalThis, 'sum', { value: sum, writable: false, configurable: false, enumerable: true });
  Object.defineProperty(globalThis, 'table', { value: table, writable: false, configurable: false, enumerable: true });
})();
`
