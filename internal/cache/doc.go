// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package cache wraps go-redis for the shared state of a bus deployment,
chiefly the agent-card cache used by discovery.

Manager prefixes every key with Config.KeyPrefix, offers string and JSON
accessors with a default TTL, reports hits and misses to the metrics
collector and pings Redis in the background. A missing key is reported as
ErrCacheMiss.
*/
package cache
