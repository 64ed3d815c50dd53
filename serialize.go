package teflib

import (
	"strconv"
)

// serializeEvents renders one JSON object per event, in buffer order.
func serializeEvents(events []Event, args []ArgumentList, st *StringTable) []string {
	out := make([]string, len(events))
	buf := make([]byte, 0, 256)
	for i := range events {
		buf = appendEvent(buf[:0], &events[i], args, st)
		out[i] = string(buf)
	}
	return out
}

// appendEvent writes
//
//	{"name":N,"cat":C,"ph":"P","ts":T,"dur":D,"pid":1,"tid":I,"args":{...}}
//
// omitting cat for counters, dur for anything but complete events, and args
// when there are none.
func appendEvent(buf []byte, e *Event, args []ArgumentList, st *StringTable) []byte {
	buf = append(buf, `{"name":`...)
	buf = append(buf, st.jsonString(e.Name)...)
	if e.hasCategory() {
		buf = append(buf, `,"cat":`...)
		buf = append(buf, st.jsonString(e.Category)...)
	}
	buf = append(buf, `,"ph":"`...)
	buf = append(buf, byte(e.Phase))
	buf = append(buf, `","ts":`...)
	buf = strconv.AppendUint(buf, e.Timestamp, 10)
	if e.Phase == PhaseComplete {
		buf = append(buf, `,"dur":`...)
		buf = strconv.AppendUint(buf, e.Duration, 10)
	}
	buf = append(buf, `,"pid":`...)
	buf = strconv.AppendInt(buf, ProcessID, 10)
	buf = append(buf, `,"tid":`...)
	buf = strconv.AppendUint(buf, e.Thread, 10)

	switch {
	case e.Phase == PhaseCounter:
		buf = append(buf, `,"args":{`...)
		buf = append(buf, st.jsonString(e.counterKey)...)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, e.counterValue, 10)
		buf = append(buf, '}')
	case e.args != noArgs && int(e.args) < len(args):
		list := args[e.args]
		buf = append(buf, `,"args":{`...)
		for i := range list {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, list[i].render(st)...)
		}
		buf = append(buf, '}')
	}

	return append(buf, '}')
}
