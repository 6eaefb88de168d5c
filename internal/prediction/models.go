package prediction

// PredictRequest is the body posted to the prediction endpoint.
type PredictRequest struct {
	Question string `json:"question"`
}

// PredictResponse carries the answer. Older flows answer in "reply".
type PredictResponse struct {
	Text  string `json:"text"`
	Reply string `json:"reply,omitempty"`
}

// FallbackAnswer is returned when the endpoint answers with an empty body.
const FallbackAnswer = "Aucune réponse disponible"

func (r PredictResponse) Answer() string {
	if r.Text != "" {
		return r.Text
	}
	if r.Reply != "" {
		return r.Reply
	}
	return FallbackAnswer
}
