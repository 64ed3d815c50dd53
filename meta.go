package teflib

import (
	"encoding/json"
	"strconv"
)

// MetaKind names a metadata event understood by trace viewers.
type MetaKind string

// Recognized metadata kinds. RecordMeta silently drops anything else.
const (
	MetaProcessName      MetaKind = "process_name"
	MetaProcessLabels    MetaKind = "process_labels"
	MetaThreadName       MetaKind = "thread_name"
	MetaProcessSortIndex MetaKind = "process_sort_index"
	MetaThreadSortIndex  MetaKind = "thread_sort_index"
)

// argName returns the args key a textual meta-event uses.
func (k MetaKind) argName() (string, bool) {
	switch k {
	case MetaProcessName, MetaThreadName:
		return "name", true
	case MetaProcessLabels:
		return "labels", true
	}
	return "", false
}

func (k MetaKind) isSortIndex() bool {
	return k == MetaProcessSortIndex || k == MetaThreadSortIndex
}

// RecordMeta records a naming meta-event (process_name, process_labels or
// thread_name) for the calling goroutine. Meta-events are kept whether or not
// capture is enabled and are delivered to each sink when it finishes, so
// they are typically recorded once during start-up.
func (t *Tracer) RecordMeta(kind MetaKind, value string) {
	if !captureCompiled {
		return
	}
	argName, ok := kind.argName()
	if !ok {
		return
	}

	quoted, err := json.Marshal(value)
	if err != nil {
		return
	}

	buf := t.metaPrefix(kind)
	buf = append(buf, `,"args":{"`...)
	buf = append(buf, argName...)
	buf = append(buf, `":`...)
	buf = append(buf, quoted...)
	buf = append(buf, "}}"...)
	t.buffer.addMeta(string(buf))
}

// RecordMetaIndex records a sort-index meta-event (process_sort_index or
// thread_sort_index) for the calling goroutine.
func (t *Tracer) RecordMetaIndex(kind MetaKind, index uint32) {
	if !captureCompiled || !kind.isSortIndex() {
		return
	}

	buf := t.metaPrefix(kind)
	buf = append(buf, `,"args":{"sort_index":`...)
	buf = strconv.AppendUint(buf, uint64(index), 10)
	buf = append(buf, "}}"...)
	t.buffer.addMeta(string(buf))
}

func (t *Tracer) metaPrefix(kind MetaKind) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, `{"name":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","ph":"M","pid":`...)
	buf = strconv.AppendInt(buf, ProcessID, 10)
	buf = append(buf, `,"tid":`...)
	buf = strconv.AppendUint(buf, goroutineID(), 10)
	return buf
}
