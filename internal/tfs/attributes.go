// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

/*
Package tfs resolves which TensorFlow Serving model endpoint a request is addressed to.

The target is selected by custom attributes of the form tfs-<key>=<value>,
embedded anywhere in a single comma separated header value:

	X-Amzn-SageMaker-Custom-Attributes: tfs-model-name=half_plus_three,tfs-model-version=123,foo=bar
*/
package tfs

import (
	"regexp"
	"strings"
)

const (
	// AttributeModelName selects the model.
	AttributeModelName = "tfs-model-name"
	// AttributeModelVersion selects a specific version of the model.
	AttributeModelVersion = "tfs-model-version"
	// AttributeMethod selects the method called on the model, e.g. "classify" or "regress".
	AttributeMethod = "tfs-method"
)

var attributePattern = regexp.MustCompile(`tfs-[a-z-]+=[^,]+`)

// Attributes maps attribute keys to their raw, untrimmed values.
type Attributes map[string]string

// ParseAttributes extracts all tfs-<key>=<value> pairs from the given header value.
// An empty or garbled header yields an empty map.
func ParseAttributes(header string) Attributes {
	attrs := Attributes{}
	for _, match := range attributePattern.FindAllString(header, -1) {
		// values containing a second '=' are dropped
		kv := strings.Split(match, "=")
		if len(kv) != 2 {
			continue
		}
		attrs[kv[0]] = kv[1]
	}
	return attrs
}
