// Package storage implements the LSM-style storage engine of spec.md §4.8:
// an in-memory memtable flushed to immutable SSTable (.ssdf/.ssif) file
// pairs once it grows past a byte ceiling, with an LRU-cached index layer
// so cold SSTables don't all stay resident in memory.
package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gossipring/cassandra/internal/kverrors"
	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/internal/lru"
	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/messaging"
)

const (
	dataExt  = ".ssdf"
	indexExt = ".ssif"

	subscriberName = "storage"
)

type indexEntry struct {
	Offset  int64
	Length  int64
	Version int64
}

type tableIndex map[string]indexEntry

// Engine owns one node's on-disk and in-memory storage state. mu guards
// every field; operations are short (map lookups and small file I/O), so a
// single coarse-grained lock matches the pool's design in spec.md §5.
type Engine struct {
	mu sync.Mutex

	dir                string
	maxIndicesInMemory int
	maxDataPerSSTable  int

	memtable     map[string]string
	memversions  map[string]int64
	memtableSize int

	tableIndexNames []string // ascending by creation time, oldest first
	tableIndices    *lru.Cache

	hub *messaging.Hub
}

// NewEngine scans dir for existing SSTable pairs and builds an Engine ready
// to serve puts and gets. Orphaned halves of a pair (only one of .ssdf/.ssif
// present) are logged and ignored, per spec.md §4.8.
func NewEngine(hub *messaging.Hub, dir string, maxIndicesInMemory, maxDataPerSSTable int) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kverrors.New(kverrors.IOError, "storage.NewEngine", err)
	}

	names, err := scanTableNames(dir)
	if err != nil {
		return nil, err
	}

	return &Engine{
		dir:                dir,
		maxIndicesInMemory: maxIndicesInMemory,
		maxDataPerSSTable:  maxDataPerSSTable,
		memtable:           make(map[string]string),
		memversions:        make(map[string]int64),
		tableIndexNames:    names,
		tableIndices:       lru.New(maxIndicesInMemory),
		hub:                hub,
	}, nil
}

func scanTableNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, kverrors.New(kverrors.IOError, "storage.scanTableNames", err)
	}

	hasData := make(map[string]bool)
	hasIndex := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch filepath.Ext(name) {
		case dataExt:
			hasData[strings.TrimSuffix(name, dataExt)] = true
		case indexExt:
			hasIndex[strings.TrimSuffix(name, indexExt)] = true
		}
	}

	var names []string
	for name := range hasData {
		if hasIndex[name] {
			names = append(names, name)
		} else {
			logger.Errorf("storage", "orphaned data file %s%s has no matching index, ignoring", name, dataExt)
		}
	}
	for name := range hasIndex {
		if !hasData[name] {
			logger.Errorf("storage", "orphaned index file %s%s has no matching data file, ignoring", name, indexExt)
		}
	}

	sort.Slice(names, func(i, j int) bool {
		a, _ := strconv.ParseInt(names[i], 10, 64)
		b, _ := strconv.ParseInt(names[j], 10, 64)
		return a < b
	})
	return names, nil
}

// Put inserts or replaces key's value, flushing the memtable first if it
// would otherwise exceed maxDataPerSSTable. The returned version is one
// greater than the highest version ever observed for this key, whether
// still resident in the memtable or already flushed to an SSTable.
func (e *Engine) Put(key, value string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.memtableSize+len(value) > e.maxDataPerSSTable {
		if err := e.flushLocked(); err != nil {
			return 0, err
		}
	}

	version, err := e.maxVersionForKeyLocked(key)
	if err != nil {
		return 0, err
	}
	version++

	if old, ok := e.memtable[key]; ok {
		e.memtableSize -= len(old)
	}
	e.memtable[key] = value
	e.memversions[key] = version
	e.memtableSize += len(value)

	return version, nil
}

// Get returns key's freshest value: the memtable if present, otherwise the
// newest SSTable containing key.
func (e *Engine) Get(key string) (string, int64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v, ok := e.memtable[key]; ok {
		return v, e.memversions[key], true, nil
	}

	for i := len(e.tableIndexNames) - 1; i >= 0; i-- {
		name := e.tableIndexNames[i]
		idx, err := e.loadIndexLocked(name)
		if err != nil {
			return "", 0, false, err
		}
		entry, ok := idx[key]
		if !ok {
			continue
		}
		value, err := e.readValue(name, entry)
		if err != nil {
			return "", 0, false, err
		}
		return value, entry.Version, true, nil
	}
	return "", 0, false, nil
}

func (e *Engine) maxVersionForKeyLocked(key string) (int64, error) {
	max := e.memversions[key]
	for _, name := range e.tableIndexNames {
		idx, err := e.loadIndexLocked(name)
		if err != nil {
			return 0, err
		}
		if entry, ok := idx[key]; ok && entry.Version > max {
			max = entry.Version
		}
	}
	return max, nil
}

func (e *Engine) loadIndexLocked(name string) (tableIndex, error) {
	cached, err := e.tableIndices.GetOrLoad(name, func() (interface{}, error) {
		return e.readIndexFile(name)
	})
	if err != nil {
		return nil, err
	}
	return cached.(tableIndex), nil
}

func (e *Engine) readIndexFile(name string) (tableIndex, error) {
	f, err := os.Open(filepath.Join(e.dir, name+indexExt))
	if err != nil {
		return nil, kverrors.New(kverrors.IOError, "storage.readIndexFile", err)
	}
	defer f.Close()

	idx := make(tableIndex)
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = 4
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		offset, _ := strconv.ParseInt(record[1], 10, 64)
		length, _ := strconv.ParseInt(record[2], 10, 64)
		version, _ := strconv.ParseInt(record[3], 10, 64)
		idx[record[0]] = indexEntry{Offset: offset, Length: length, Version: version}
	}
	return idx, nil
}

func (e *Engine) readValue(tableName string, entry indexEntry) (string, error) {
	f, err := os.Open(filepath.Join(e.dir, tableName+dataExt))
	if err != nil {
		return "", kverrors.New(kverrors.IOError, "storage.readValue", err)
	}
	defer f.Close()

	buf := make([]byte, entry.Length)
	if _, err := f.ReadAt(buf, entry.Offset); err != nil {
		return "", kverrors.New(kverrors.IOError, "storage.readValue", err)
	}
	return string(buf), nil
}

// flushLocked writes the memtable to a new SSTable pair and clears it. No-op
// on an empty memtable. Caller must hold mu.
func (e *Engine) flushLocked() error {
	if len(e.memtable) == 0 {
		return nil
	}

	indexKey := currentMillis()
	keys := make([]string, 0, len(e.memtable))
	for k := range e.memtable {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dataPath := filepath.Join(e.dir, indexKey+dataExt)
	indexPath := filepath.Join(e.dir, indexKey+indexExt)

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return kverrors.New(kverrors.IOError, "storage.flush", err)
	}
	defer dataFile.Close()

	indexFile, err := os.Create(indexPath)
	if err != nil {
		return kverrors.New(kverrors.IOError, "storage.flush", err)
	}
	defer indexFile.Close()

	w := csv.NewWriter(indexFile)
	var offset int64
	for _, k := range keys {
		v := e.memtable[k]
		n, err := dataFile.WriteString(v)
		if err != nil {
			return kverrors.New(kverrors.IOError, "storage.flush", err)
		}
		if err := w.Write([]string{k, strconv.FormatInt(offset, 10), strconv.Itoa(n), strconv.FormatInt(e.memversions[k], 10)}); err != nil {
			return kverrors.New(kverrors.IOError, "storage.flush", err)
		}
		offset += int64(n)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return kverrors.New(kverrors.IOError, "storage.flush", err)
	}

	e.tableIndexNames = append(e.tableIndexNames, indexKey)
	e.memtable = make(map[string]string)
	e.memversions = make(map[string]int64)
	e.memtableSize = 0
	return nil
}

func currentMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// Flush exposes flushLocked for the graceful-shutdown path.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

// Stats is a point-in-time summary of the engine's memtable and SSTable
// footprint, for the admin diagnostics service.
type Stats struct {
	MemtableKeys int
	MemtableSize int
	SSTables     int
}

// Stats reports the engine's current memtable and SSTable counts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		MemtableKeys: len(e.memtable),
		MemtableSize: e.memtableSize,
		SSTables:     len(e.tableIndexNames),
	}
}

// Run subscribes to REQUEST messages and dispatches put/get operations,
// replying with a RESPONSE to the request's source. On ctx cancellation the
// memtable is flushed before returning, per spec.md §4.8's graceful-signal
// requirement.
func (e *Engine) Run(ctx context.Context) {
	inbox := e.hub.Register(wire.CodeRequest, subscriberName)

	for {
		select {
		case <-ctx.Done():
			if err := e.Flush(); err != nil {
				logger.Errorf("storage", "flush on shutdown: %v", err)
			}
			return
		case m := <-inbox:
			e.handleRequest(m)
		}
	}
}

func (e *Engine) handleRequest(m messaging.Message) {
	var req wire.RequestPayload
	if err := json.Unmarshal(m.Data, &req); err != nil {
		logger.Errorf("storage", "decode request from %s: %v", m.SourceAddr, err)
		return
	}

	resp := e.dispatch(req)
	resp.RequestHash = req.RequestHash

	payload, err := json.Marshal(resp)
	if err != nil {
		logger.Errorf("storage", "encode response for %s: %v", m.SourceAddr, err)
		return
	}
	e.hub.Send(m.SourceAddr, messaging.Message{Code: wire.CodeResponse, Data: payload})
}

func (e *Engine) dispatch(req wire.RequestPayload) wire.ResponsePayload {
	if len(req.Request) == 0 {
		return wire.ResponsePayload{Status: false, Description: "empty request"}
	}
	op, ok := req.Request[0].(string)
	if !ok {
		return wire.ResponsePayload{Status: false, Description: "request[0] must be an operation name"}
	}

	switch op {
	case "get":
		if len(req.Request) < 2 {
			return wire.ResponsePayload{Status: false, Description: "get requires a key"}
		}
		key, _ := req.Request[1].(string)
		value, version, found, err := e.Get(key)
		if err != nil {
			return wire.ResponsePayload{Status: false, Description: err.Error()}
		}
		if !found {
			return wire.ResponsePayload{Status: true, Description: []interface{}{}}
		}
		return wire.ResponsePayload{Status: true, Description: []interface{}{value, version}}

	case "put", "update":
		if len(req.Request) < 3 {
			return wire.ResponsePayload{Status: false, Description: fmt.Sprintf("%s requires a key and a value", op)}
		}
		key, _ := req.Request[1].(string)
		value, _ := req.Request[2].(string)
		version, err := e.Put(key, value)
		if err != nil {
			return wire.ResponsePayload{Status: false, Description: err.Error()}
		}
		return wire.ResponsePayload{Status: true, Description: []interface{}{value, version}}

	default:
		return wire.ResponsePayload{Status: false, Description: fmt.Sprintf("unknown operation %q", op)}
	}
}
