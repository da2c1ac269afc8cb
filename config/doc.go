// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config loads the configuration of a bus node.
//
// Values start from DefaultConfig, are overlaid by a YAML file and then by
// environment variables named after the env struct tags joined with "_"
// under the A2ABUS prefix, e.g. A2ABUS_BUS_QUEUE_SIZE or
// A2ABUS_ROUTER_WEIGHTS_PRIMARY. Agents are configured in YAML only.
package config
