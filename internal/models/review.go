package models

// Evaluation is an externally computed judgement of a caption against its
// image. A nil Score means the backend could not produce one; Explanation
// then carries whatever the model said (or why it was skipped).
type Evaluation struct {
	Score       *int
	Explanation string
}
