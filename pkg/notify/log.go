package notify

import (
	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
)

//LogObserver writes detected actions at info level and every classification pass at debug level.
type LogObserver struct{}

func (LogObserver) Notify(ev pose.Event) {
	switch ev.Kind {
	case pose.ActionDetected:
		log.Info(log.Fields{"label": ev.Label, "confidence": ev.Confidence, "seq": ev.Seq}, "[notify] action detected")
	case pose.ActionLabeled:
		log.Debug(log.Fields{"label": ev.Label, "confidence": ev.Confidence, "seq": ev.Seq}, "[notify] action labeled")
	}
}
