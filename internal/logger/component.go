// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"os"
)

// Component is an enumeration representing the "components" which can be logged against. A Level can be
// configured on a per-component basis.
type Component int

const (
	// ComponentAll enables logging for all components.
	ComponentAll Component = iota

	// ComponentCursor enables cursor lifecycle logging: batch fetches, exhaustion and release.
	ComponentCursor

	// ComponentPromise enables logging of promise library changes.
	ComponentPromise
)

// ComponentLiteral is an enumeration representing the string literal "components" which can be logged against.
type ComponentLiteral string

const (
	ComponentLiteralAll     ComponentLiteral = "all"
	ComponentLiteralCursor  ComponentLiteral = "cursor"
	ComponentLiteralPromise ComponentLiteral = "promise"
)

// Component returns the Component for the given ComponentLiteral.
func (componentLiteral ComponentLiteral) Component() Component {
	switch componentLiteral {
	case ComponentLiteralCursor:
		return ComponentCursor
	case ComponentLiteralPromise:
		return ComponentPromise
	default:
		return ComponentAll
	}
}

// componentEnvVar is an enumeration representing the environment variables which can be used to configure
// a component's log level.
type componentEnvVar string

const (
	componentEnvVarAll     componentEnvVar = "MONGODB_LOG_ALL"
	componentEnvVarCursor  componentEnvVar = "MONGODB_LOG_CURSOR"
	componentEnvVarPromise componentEnvVar = "MONGODB_LOG_PROMISE"
)

// component returns the Component the environment variable configures.
func (env componentEnvVar) component() Component {
	switch env {
	case componentEnvVarCursor:
		return ComponentCursor
	case componentEnvVarPromise:
		return ComponentPromise
	default:
		return ComponentAll
	}
}

var allComponentEnvVars = []componentEnvVar{
	componentEnvVarAll,
	componentEnvVarCursor,
	componentEnvVarPromise,
}

// getEnvComponentLevels reads the component log levels from the environment. MONGODB_LOG_ALL applies to
// every component and takes precedence over the per-component variables.
func getEnvComponentLevels() map[Component]Level {
	levels := make(map[Component]Level)

	var globalLevel Level
	for _, envVar := range allComponentEnvVars {
		level := parseLevel(os.Getenv(string(envVar)))
		if level == OffLevel {
			continue
		}

		if envVar == componentEnvVarAll {
			globalLevel = level
			continue
		}
		levels[envVar.component()] = level
	}

	if globalLevel != OffLevel {
		for _, component := range []Component{ComponentCursor, ComponentPromise} {
			levels[component] = globalLevel
		}
	}

	return levels
}

// mergeComponentLevels merges the maps in order; later maps win.
func mergeComponentLevels(componentLevels ...map[Component]Level) map[Component]Level {
	merged := make(map[Component]Level)
	for _, levels := range componentLevels {
		for component, level := range levels {
			if component == ComponentAll {
				for _, c := range []Component{ComponentCursor, ComponentPromise} {
					merged[c] = level
				}
				continue
			}
			merged[component] = level
		}
	}
	return merged
}

// ComponentMessage is a loggable message belonging to a Component.
type ComponentMessage interface {
	Component() Component
	Message() string
	Serialize() []interface{}
}
