package utils

import "time"

//WindowSize is the number of frames one action classification looks at
const WindowSize = 30

//KeypointsNum is the number of tracked body joints in each frame
const KeypointsNum = 18

//ChannelsNum is the number of values kept per joint (x, y, confidence)
const ChannelsNum = 3

//DefaultWatchedLabel is the action label that triggers a notification when nothing else is configured
const DefaultWatchedLabel = "jab"

//DefaultThreshold is the confidence a watched label must exceed (strictly) to trigger a notification
const DefaultThreshold = 0.95

//DefaultCooldown is the quiet period after a notification during which the watched label is ignored
const DefaultCooldown = 3 * time.Second

//DefaultInboxSize is the number of frames waiting for the pipeline before new ones are dropped
const DefaultInboxSize = 4

//SourceKinds is a list of supported frame sources
var SourceKinds = []string{"camera", "file", "api"}

//ClassifierKinds is a list of supported classifier backends
var ClassifierKinds = []string{"template", "python"}
