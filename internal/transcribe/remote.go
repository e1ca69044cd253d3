package transcribe

import (
	"context"

	"github.com/mgpai22/capsync/internal/remote"
)

// sends the media file to a caption service's /transcribe endpoint
type RemoteTranscriber struct {
	client *remote.Client
}

func NewRemoteTranscriber(opts Options) *RemoteTranscriber {
	return &RemoteTranscriber{client: remote.NewClient(opts.ServiceURL, opts.Logger)}
}

func (t *RemoteTranscriber) Transcribe(ctx context.Context, mediaPath string) (*Result, error) {
	segs, err := t.client.Transcribe(ctx, mediaPath)
	if err != nil {
		return nil, failed(err)
	}

	duration := 0.0
	for _, s := range segs {
		if s.End > duration {
			duration = s.End
		}
	}
	return &Result{Segments: finalize(segs), Duration: duration}, nil
}
