package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/protosalvage/protosalvage/internal/reconstruct"
	"github.com/protosalvage/protosalvage/internal/schema"
)

func TestVerifyAcceptsMatchingRender(t *testing.T) {
	model := &schema.File{
		Name:   "ok.proto",
		Syntax: "proto3",
		Messages: []*schema.Message{
			{
				Name: "Msg",
				Fields: []*schema.Field{
					{Name: "id", Number: 1, Type: schema.TypeInt32},
				},
			},
		},
	}
	rendered, err := reconstruct.Render(model)
	require.NoError(t, err)

	err = Verify(context.Background(), model, rendered)
	require.NoError(t, err)
}

func TestVerifyRejectsUnparsableText(t *testing.T) {
	model := &schema.File{Name: "broken.proto", Syntax: "proto3"}
	err := Verify(context.Background(), model, "this is not valid proto {{{")
	require.Error(t, err)
}

func TestVerifyDetectsMissingMessage(t *testing.T) {
	model := &schema.File{
		Name:   "drift.proto",
		Syntax: "proto3",
		Messages: []*schema.Message{
			{Name: "Expected"},
		},
	}
	rendered := "syntax = \"proto3\";\n\nmessage Other {\n}\n"
	err := Verify(context.Background(), model, rendered)
	require.Error(t, err)
}
