package schema

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

func TestInferType(t *testing.T) {
	tests := []struct {
		name  string
		value document.Value
		want  models.FieldType
	}{
		{"null", document.Null(), models.FieldTypeNull},
		{"bool true", document.Bool(true), models.FieldTypeBoolean},
		{"bool false", document.Bool(false), models.FieldTypeBoolean},
		{"int", document.Int(1), models.FieldTypeInteger},
		{"float", document.Float(1.5), models.FieldTypeNumber},
		{"plain string", document.String("hello"), models.FieldTypeString},
		{"object id", document.String("68e527ed7fc3841868bef0aa"), models.FieldTypeObjectID},
		{"object id upper", document.String("68E527ED7FC3841868BEF0AA"), models.FieldTypeObjectID},
		{"23 hex chars", document.String("68e527ed7fc3841868bef0a"), models.FieldTypeString},
		{"datetime millis Z", document.String("2025-10-07T11:47:09.803Z"), models.FieldTypeDatetime},
		{"datetime offset", document.String("2025-10-07T11:47:09+02:00"), models.FieldTypeDatetime},
		{"date only", document.String("2025-10-07"), models.FieldTypeString},
		{"datetime without zone", document.String("2025-10-07T11:47:09"), models.FieldTypeString},
		{"array", document.Array(document.Int(1)), models.FieldTypeArray},
		{"object", document.Object(map[string]document.Value{"a": document.Int(1)}), models.FieldTypeObject},
		{"opaque", document.Opaque("Decimal128(1.0)"), models.FieldTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferType(tt.value))
		})
	}
}

func TestFlatten(t *testing.T) {
	t.Run("nested object", func(t *testing.T) {
		doc := document.Document{"a": document.Object(map[string]document.Value{"b": document.Int(1)})}
		got := FlattenMap(doc)
		require.Len(t, got, 1)
		assert.True(t, got["a.b"].Equal(document.Int(1)))
	})

	t.Run("arrays are leaves", func(t *testing.T) {
		doc := document.Document{"tags": document.Array(
			document.Object(map[string]document.Value{"x": document.Int(1)}),
		)}
		leaves := Flatten(doc)
		require.Len(t, leaves, 1)
		assert.Equal(t, "tags", leaves[0].Path)
		assert.Equal(t, models.FieldTypeArray, InferType(leaves[0].Value))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Flatten(document.Document{}))
		assert.Empty(t, Flatten(nil))
	})

	t.Run("deterministic order", func(t *testing.T) {
		doc := document.Document{
			"z": document.Int(1),
			"a": document.Object(map[string]document.Value{
				"y": document.Int(2),
				"b": document.Object(map[string]document.Value{"c": document.Null()}),
			}),
		}
		var paths []string
		for _, l := range Flatten(doc) {
			paths = append(paths, l.Path)
		}
		assert.Equal(t, []string{"a.b.c", "a.y", "z"}, paths)
	})

	t.Run("empty keys", func(t *testing.T) {
		doc := document.Document{
			"":     document.Int(1),
			"meta": document.Object(map[string]document.Value{"": document.Int(2)}),
		}
		got := FlattenMap(doc)
		require.Len(t, got, 2)
		assert.True(t, got[""].Equal(document.Int(1)))
		assert.True(t, got["meta."].Equal(document.Int(2)))
		assert.Equal(t, "", lastSegment("meta."))
	})

	t.Run("empty key holding an object", func(t *testing.T) {
		doc := document.Document{"": document.Object(map[string]document.Value{"a": document.Int(1)})}
		leaves := Flatten(doc)
		require.Len(t, leaves, 1)
		assert.Equal(t, ".a", leaves[0].Path)
	})

	t.Run("invalid utf8 keys are repaired", func(t *testing.T) {
		leaves := Flatten(document.Document{"k\xff": document.Int(1)})
		require.Len(t, leaves, 1)
		assert.Equal(t, "k\uFFFD", leaves[0].Path)
	})
}

func TestExtractor_FirstNonNullTypeWins(t *testing.T) {
	docs := []document.Document{
		{"v": document.Null()},
		{"v": document.Int(1)},
		{"v": document.String("x")},
	}
	set := NewExtractor(zap.NewNop()).Extract(docs)

	obs := set.Get("v")
	require.NotNil(t, obs)
	assert.Equal(t, models.FieldTypeInteger, obs.Type)
	assert.Equal(t, 3, obs.PresentCount)
	assert.Len(t, obs.Values, 3)
}

func TestExtractor_AllNullFieldTypedNull(t *testing.T) {
	docs := []document.Document{{"v": document.Null()}, {"v": document.Null()}}
	set := NewExtractor(zap.NewNop()).Extract(docs)
	assert.Equal(t, models.FieldTypeNull, set.Get("v").Type)
	assert.Empty(t, set.Get("v").Samples)
}

func TestExtractor_SamplesCappedDistinctAndSkipUncomparable(t *testing.T) {
	var docs []document.Document
	for i := 0; i < 10; i++ {
		docs = append(docs, document.Document{
			"n":    document.Int(int64(i % 7)),
			"dup":  document.String("same"),
			"list": document.Array(document.Int(int64(i))),
		})
	}
	set := NewExtractor(zap.NewNop()).Extract(docs)

	assert.Len(t, set.Get("n").Samples, models.MaxSampleValues)
	assert.Len(t, set.Get("dup").Samples, 1)
	assert.Empty(t, set.Get("list").Samples)
	assert.Equal(t, models.FieldTypeArray, set.Get("list").Type)
}

func TestExtractor_PathOrderIsFirstSeen(t *testing.T) {
	docs := []document.Document{
		{"b": document.Int(1)},
		{"a": document.Int(1), "b": document.Int(2)},
	}
	set := NewExtractor(zap.NewNop()).Extract(docs)
	assert.Equal(t, []string{"b", "a"}, set.Paths())
}

func TestNewAnalyzer_NegativeLimit(t *testing.T) {
	_, err := NewAnalyzer(-1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	a, err := NewAnalyzer(0)
	require.NoError(t, err)
	assert.Equal(t, 0, a.CardinalityLimit())
}

func TestAnalyzer_StatusScenario(t *testing.T) {
	var docs []document.Document
	for i := 0; i < 100; i++ {
		status := "A"
		if i >= 60 {
			status = "B"
		}
		docs = append(docs, document.Document{"status": document.String(status)})
	}

	profiles := analyze(t, docs, DefaultCardinalityLimit)
	require.Len(t, profiles, 1)
	p := profiles[0]

	assert.Equal(t, 1.0, p.PresenceRatio)
	assert.True(t, p.Required)
	assert.False(t, p.Nullable)
	assert.True(t, p.Enumerable)
	assert.ElementsMatch(t, []string{"A", "B"}, stringsOf(p.UniqueValues))
	assert.Equal(t, "status", p.Name)
	assert.Equal(t, models.EnrichmentStatusNotEnriched, p.EnrichmentStatus)
}

func TestAnalyzer_PartialPresence(t *testing.T) {
	var docs []document.Document
	for i := 0; i < 10; i++ {
		doc := document.Document{"id": document.Int(int64(i))}
		if i < 2 {
			doc["rare"] = document.String("x")
		}
		docs = append(docs, doc)
	}

	profiles := analyze(t, docs, DefaultCardinalityLimit)
	rare := findField(t, profiles, "rare")
	assert.InDelta(t, 0.2, rare.PresenceRatio, 1e-9)
	assert.False(t, rare.Required)
}

func TestAnalyzer_RequiredThreshold(t *testing.T) {
	obs := &FieldObservation{Path: "x", PresentCount: 95, Type: models.FieldTypeInteger}
	a, err := NewAnalyzer(DefaultCardinalityLimit)
	require.NoError(t, err)

	assert.True(t, a.AnalyzeField(obs, 100).Required)
	obs.PresentCount = 94
	assert.False(t, a.AnalyzeField(obs, 100).Required)
	assert.Equal(t, 0.0, a.AnalyzeField(obs, 0).PresenceRatio)
}

func TestAnalyzer_NullableAndCardinality(t *testing.T) {
	var docs []document.Document
	for i := 0; i < 60; i++ {
		docs = append(docs, document.Document{
			"id":     document.Int(int64(i)),
			"maybe":  document.Null(),
			"nested": document.Object(map[string]document.Value{"deep": document.Bool(i%2 == 0)}),
			"tags":   document.Array(document.String("a")),
		})
	}
	docs = append(docs, document.Document{"maybe": document.String("set")})

	profiles := analyze(t, docs, DefaultCardinalityLimit)

	id := findField(t, profiles, "id")
	assert.False(t, id.Enumerable, "60 distinct values exceed the limit")
	assert.Nil(t, id.UniqueValues)

	maybe := findField(t, profiles, "maybe")
	assert.True(t, maybe.Nullable)
	assert.Equal(t, models.FieldTypeString, maybe.Type)
	assert.True(t, maybe.Enumerable)
	assert.Equal(t, []string{"set"}, stringsOf(maybe.UniqueValues))

	deep := findField(t, profiles, "nested.deep")
	assert.Equal(t, "deep", deep.Name)
	assert.True(t, deep.Enumerable)
	assert.Len(t, deep.UniqueValues, 2)

	tags := findField(t, profiles, "tags")
	assert.False(t, tags.Enumerable, "arrays fail closed")
	assert.Nil(t, tags.UniqueValues)
	assert.Nil(t, tags.SampleValues)
}

func TestAnalyzer_AllNullIsEnumerableWithEmptySet(t *testing.T) {
	profiles := analyze(t, []document.Document{{"x": document.Null()}}, DefaultCardinalityLimit)
	x := findField(t, profiles, "x")
	assert.True(t, x.Enumerable)
	assert.NotNil(t, x.UniqueValues)
	assert.Empty(t, x.UniqueValues)
	assert.Equal(t, models.FieldTypeNull, x.Type)
}

func TestAnalyzer_Invariants(t *testing.T) {
	var docs []document.Document
	for i := 0; i < 37; i++ {
		doc := document.Document{"k": document.Int(int64(i % 3))}
		if i%5 == 0 {
			doc["sparse"] = document.Float(float64(i))
		}
		if i%2 == 0 {
			doc["obj"] = document.Object(map[string]document.Value{"v": document.String(fmt.Sprint(i))})
		}
		docs = append(docs, doc)
	}

	for _, p := range analyze(t, docs, 5) {
		assert.GreaterOrEqual(t, p.PresenceRatio, 0.0, p.Path)
		assert.LessOrEqual(t, p.PresenceRatio, 1.0, p.Path)
		assert.Equal(t, p.PresenceRatio >= 0.95, p.Required, p.Path)
		assert.Equal(t, p.Enumerable, p.UniqueValues != nil, p.Path)
		assert.LessOrEqual(t, len(p.SampleValues), models.MaxSampleValues, p.Path)
	}
}

func TestProfiler_Profile(t *testing.T) {
	p, err := NewProfiler(DefaultCardinalityLimit, zap.NewNop())
	require.NoError(t, err)

	id := models.SourceIdentity{DBName: "shop", TableName: "orders"}
	profile := p.Profile(id, []document.Document{{"a": document.Int(1)}, {"a": document.Int(2)}})

	assert.Equal(t, id, profile.Identity())
	assert.Equal(t, 2, profile.DocumentCount)
	assert.False(t, profile.ExtractedAt.IsZero())
	assert.Equal(t, profile.ExtractedAt, profile.UpdatedAt)
	require.Len(t, profile.Fields, 1)
	assert.Equal(t, "a", profile.Fields[0].Path)

	_, err = NewProfiler(-5, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func analyze(t *testing.T, docs []document.Document, limit int) []models.FieldProfile {
	t.Helper()
	a, err := NewAnalyzer(limit)
	require.NoError(t, err)
	set := NewExtractor(zap.NewNop()).Extract(docs)
	return a.Analyze(set, len(docs))
}

func findField(t *testing.T, profiles []models.FieldProfile, path string) models.FieldProfile {
	t.Helper()
	for _, p := range profiles {
		if p.Path == path {
			return p
		}
	}
	t.Fatalf("field %q not found", path)
	return models.FieldProfile{}
}

func stringsOf(values []document.Value) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.String())
	}
	return out
}
