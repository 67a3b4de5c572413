package worker

import "context"

// Message handles a control message.
//
// skipWaiting asks the host to activate this worker now. downloadOffline
// runs DownloadOffline. Unrecognized messages are ignored.
func (w *Worker) Message(ctx context.Context, msg string) error {
	switch msg {
	case MessageSkipWaiting, MessageForceActivate:
		w.log.Info("skip waiting requested")
		w.host.SkipWaiting()
		return nil
	case MessageDownloadOffline, MessageDownloadForOffline:
		_, err := w.DownloadOffline(ctx)
		return err
	default:
		w.log.Debug("ignoring unknown message", "message", msg)
		return nil
	}
}
