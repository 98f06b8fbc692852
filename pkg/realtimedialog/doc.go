// Package realtimedialog drives a realtime voice dialog over the binary
// frame protocol in [dialogproto].
//
// A RequestHandler turns dialog operations (StartConnection, StartSession,
// SayHello, ChatTTSText, audio upload, FinishSession, FinishConnection)
// into frames and sends them in order. Each control request returns a
// *Call that completes once the frame is written.
//
// A ResponseHandler consumes inbound frames. It tracks whether the
// connection and session are active, forwards server audio to a player,
// and pauses the microphone while that audio plays. Status, text and
// errors reach the application through an Observer.
//
// Dialog puts the pieces together:
//
//	d, err := realtimedialog.NewDialog(cfg,
//	    realtimedialog.WithDialogRecorder(mic),
//	    realtimedialog.WithSink(speaker),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := d.Start(ctx, ""); err != nil {
//	    return err
//	}
//	defer d.Stop(context.Background())
//	d.SayHello(ctx, "你好")
package realtimedialog
