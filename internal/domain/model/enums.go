package model

// BodyKind is the platform's discriminator for the encoding of a comment body
// (the textContent.html.type field of a comment payload).
type BodyKind string

const (
	BodyKindDraft  BodyKind = "draft"  // Draft.js blocks: flat text per block plus entity ranges.
	BodyKindTipTap BodyKind = "tiptap" // TipTap document: nested typed nodes.
	BodyKindWriter BodyKind = "writer" // Pre-Draft.js HTML markup.
)

// RecordSource records how a critique was reached during traversal.
type RecordSource string

const (
	RecordSourceReply RecordSource = "reply" // Found in the batch's reply tree.
	RecordSourceLink  RecordSource = "link"  // Referenced by a link in the batch body.
)
