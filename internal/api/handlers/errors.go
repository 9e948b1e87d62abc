// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/clauded/dashboard/internal/apierr"
)

// WriteAPIError translates any error into the standard envelope via the
// single Kind→status mapping in apierr.Status, defaulting unrecognized
// errors to Internal/500.
func WriteAPIError(w http.ResponseWriter, err error) {
	kind := apierr.As(err)
	WriteError(w, apierr.Status(kind), string(kind), err.Error())
}
