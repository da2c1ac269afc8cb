// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package router classifies a natural-language request to one specialist.

Scoring is keyword based: each matched primary phrase adds Weights.Primary
and each secondary phrase Weights.Secondary; question, action-intent,
comparison and continuity cues add bonuses; the sum is multiplied by the
profile's priority weight. The highest score wins, ties go to the higher
priority and then the lexicographically smaller name. Confidence is the
winner's share of all scores. When nothing scores, the table's default
agent is chosen with Weights.FallbackConfidence.
*/
package router
