// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_MatchesKnownMarkers(t *testing.T) {
	require.True(t, Classify(errors.New("upstream returned HTTP 503")))
	require.True(t, Classify(errors.New("request timeout after 30s")))
	require.False(t, Classify(errors.New("invalid api key")))
	require.False(t, Classify(nil))
}

func TestWrap_CarriesClassificationAndUnwraps(t *testing.T) {
	base := errors.New("429 too many requests")
	je := Wrap(base)
	require.NotNil(t, je)
	require.True(t, je.Retryable)
	require.Equal(t, base, errors.Unwrap(je))
	require.Equal(t, base.Error(), je.Error())

	require.Nil(t, Wrap(nil))
}
