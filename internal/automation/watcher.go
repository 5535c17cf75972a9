package automation

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"curabot/internal/ingest"
	"curabot/internal/repo"
)

const (
	reconnectBase = 2 * time.Second
	reconnectMax  = 30 * time.Second
)

// Watcher drives one project's event stream: read a frame, reduce it,
// execute the resulting actions, repeat. Events are processed strictly one
// at a time, so every snapshot read observes the step write that preceded
// it.
type Watcher struct {
	Client *Client
	Ingest ingest.Service
	Log    *logrus.Logger
}

// Watch follows the project's stream until the run completes or ctx is
// cancelled. A dropped stream reconnects with capped exponential backoff as
// long as the stored project status is still pending or running.
func (w *Watcher) Watch(ctx context.Context, projectID, userID string) {
	log := w.Log.WithField("project", projectID)
	defer streamConnected.DeleteLabelValues(projectID)
	backoff := reconnectBase
	for {
		done, err := w.follow(ctx, projectID, userID)
		if done {
			return
		}
		if err != nil {
			streamDrops.Inc()
			log.WithError(err).Warn("event stream dropped")
		}
		if ctx.Err() != nil {
			return
		}
		p, err := w.Ingest.Repo.GetProjectByID(ctx, projectID)
		if err != nil {
			log.WithError(err).Error("project lookup after stream drop")
			return
		}
		if p.Status != "pending" && p.Status != "running" {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// follow runs one stream connection. It reports done=true when the run
// reached its terminal event and the stream was closed deliberately.
func (w *Watcher) follow(ctx context.Context, projectID, userID string) (bool, error) {
	log := w.Log.WithField("project", projectID)
	stream, err := w.Client.Stream(ctx, projectID)
	if err != nil {
		return false, err
	}
	defer stream.Close()
	defer streamConnected.WithLabelValues(projectID).Set(0)

	state := State{ProjectID: projectID}
	for {
		frame, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, errors.New("stream closed by server")
			}
			return false, err
		}
		ev, err := ParseEvent(frame)
		if err != nil {
			log.WithError(err).Warn("skipping event frame")
			continue
		}
		eventsReceived.WithLabelValues(ev.Type).Inc()

		var actions []Action
		state, actions = Reduce(state, ev)
		if state.Connected {
			streamConnected.WithLabelValues(projectID).Set(1)
		}
		for _, a := range actions {
			switch act := a.(type) {
			case PersistStep:
				if err := w.Ingest.SaveStep(ctx, "", projectID, act.Patch); err != nil {
					log.WithError(err).WithField("step", act.Patch.ID).Error("persist step")
					continue
				}
				stepsPersisted.Inc()
			case CompleteProject:
				status := "completed"
				if !act.Success {
					status = "failed"
				}
				err := w.Ingest.ApplyResult(ctx, ingest.ResultUpdate{
					ProjectID:      projectID,
					Summary:        act.Summary,
					ProjectStatus:  status,
					AnalysisStatus: status,
					AnalysisID:     act.AnalysisID,
				})
				if err != nil {
					log.WithError(err).Error("apply run result")
				}
			case FetchSnapshot:
				if _, err := w.Ingest.Repo.ForUser(userID).GetProject(ctx, projectID); err != nil {
					if errors.Is(err, repo.ErrIntegrity) {
						log.WithError(err).Error("snapshot integrity fault")
					} else {
						log.WithError(err).Warn("snapshot fetch")
					}
				}
			case CloseStream:
				return true, nil
			}
		}
	}
}
