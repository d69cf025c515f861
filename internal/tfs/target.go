// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

package tfs

import (
	"strings"

	"github.com/edgelesssys/sagemaker-tfs/internal/constants"
)

// Target is the TensorFlow Serving endpoint a single request is sent to.
type Target struct {
	Model string
	// Version is empty if the latest version should be used.
	Version string
	Method  string
}

// NewTarget resolves the target for the given attributes.
// defaultModel is used if the caller did not select a model.
func NewTarget(attrs Attributes, defaultModel string) Target {
	model := attrs[AttributeModelName]
	if model == "" {
		model = defaultModel
	}
	method := attrs[AttributeMethod]
	if method == "" {
		method = constants.TFSDefaultMethod
	}
	return Target{
		Model:   model,
		Version: attrs[AttributeModelVersion],
		Method:  method,
	}
}

// Path returns the backend request path of the target.
// If withMethod is set, the method is appended as ":<method>",
// which is required for prediction calls but not for model status requests.
func (t Target) Path(withMethod bool) string {
	var b strings.Builder
	b.WriteString(constants.TFSModelsBasePath)
	b.WriteString(t.Model)
	if t.Version != "" {
		b.WriteString("/versions/")
		b.WriteString(t.Version)
	}
	if withMethod {
		b.WriteString(":")
		b.WriteString(t.Method)
	}
	return b.String()
}
