// Package dialogtrace records the frames of a realtime dialog to a
// msgpack stream and reads them back.
//
// A Recorder is a dialogws.Tap:
//
//	rec, err := dialogtrace.Create("session.msgpack")
//	...
//	d, err := realtimedialog.NewDialog(cfg, realtimedialog.WithFrameTap(rec))
//	...
//	defer rec.Close()
package dialogtrace
