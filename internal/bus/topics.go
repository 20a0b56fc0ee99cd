package bus

import (
	"errors"
	"fmt"
)

// Topic names a bus channel.
type Topic string

const (
	TopicShowMessage      Topic = "showMessage"
	TopicCollectItem      Topic = "collectItem"
	TopicInventoryUpdated Topic = "inventory:updated"
	TopicPuzzleInteracted Topic = "puzzle:interacted"
	TopicGameWin          Topic = "game:win"
	TopicGamePause        Topic = "game:pause"
	TopicGameResume       Topic = "game:resume"
	TopicGameRestart      Topic = "game:restart"
	TopicStageStarted     Topic = "stageStarted"
	TopicStageCompleted   Topic = "stageCompleted"
	TopicLevelReset       Topic = "level:reset"
	TopicSceneReady       Topic = "scene:ready"

	TopicObjectHover   Topic = "object:hover"
	TopicObjectLeave   Topic = "object:leave"
	TopicLoadingError  Topic = "loading:error"
	TopicHintRequest   Topic = "companion:hint"
	TopicEffectStarted Topic = "effect:started"
	TopicSystemError   Topic = "system.error"
)

// ErrUnknownTopic is returned when publishing to a topic outside the allow-list.
var ErrUnknownTopic = errors.New("unknown topic")

var allowedTopics = map[Topic]struct{}{
	// presentation
	TopicShowMessage:      {},
	TopicInventoryUpdated: {},
	TopicObjectHover:      {},
	TopicObjectLeave:      {},
	TopicEffectStarted:    {},

	// puzzle
	TopicCollectItem:      {},
	TopicPuzzleInteracted: {},
	TopicHintRequest:      {},

	// lifecycle
	TopicGameWin:     {},
	TopicGamePause:   {},
	TopicGameResume:  {},
	TopicGameRestart: {},
	TopicLevelReset:  {},
	TopicSceneReady:  {},

	// telemetry
	TopicStageStarted:   {},
	TopicStageCompleted: {},

	// system
	TopicLoadingError: {},
	TopicSystemError:  {},
}

// Validate returns an error wrapping ErrUnknownTopic if t is not allow-listed.
func Validate(t Topic) error {
	if _, ok := allowedTopics[t]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, t)
	}
	return nil
}

// Topics returns every allow-listed topic.
func Topics() []Topic {
	out := make([]Topic, 0, len(allowedTopics))
	for t := range allowedTopics {
		out = append(out, t)
	}
	return out
}
