package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestQuestionKeepsUnknownFields(t *testing.T) {
	var q Question
	in := `{"_id":"q1","question":"x","chapter":"ch-2","tags":["a"],"meta":{"reviewed":true}}`
	if err := json.Unmarshal([]byte(in), &q); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if q.ID != "q1" || q.Question != "x" {
		t.Errorf("known fields not decoded: %+v", q)
	}
	if len(q.Extra) != 3 {
		t.Fatalf("extra = %v, want chapter, tags and meta", q.Extra)
	}

	data, err := json.Marshal(UpdateQuestionRequest{QuestionData: q})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var sent struct {
		QuestionData map[string]json.RawMessage `json:"question_data"`
	}
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("Unmarshal request: %v", err)
	}
	want := map[string]string{
		"_id":      `"q1"`,
		"question": `"x"`,
		"chapter":  `"ch-2"`,
		"tags":     `["a"]`,
		"meta":     `{"reviewed":true}`,
	}
	for k, v := range want {
		if got := string(sent.QuestionData[k]); got != v {
			t.Errorf("question_data[%q] = %s, want %s", k, got, v)
		}
	}
}

func TestQuestionKnownFieldWinsOverExtra(t *testing.T) {
	q := Question{
		ID:    "q1",
		Marks: 3,
		Extra: map[string]json.RawMessage{"marks": json.RawMessage(`99`), "chapter": json.RawMessage(`"ch-1"`)},
	}
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got["marks"]) != "3" || string(got["chapter"]) != `"ch-1"` {
		t.Errorf("marks=%s chapter=%s", got["marks"], got["chapter"])
	}
}

func TestQuestionSendsClearedOptions(t *testing.T) {
	data, err := json.Marshal(Question{ID: "q1", QuestionType: TypeMCQ, Option1: "yes"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range []string{"option2", "option3", "option4", "correctanswer"} {
		v, ok := got[k]
		if !ok {
			t.Errorf("%s missing from the record", k)
			continue
		}
		if string(v) != `""` {
			t.Errorf("%s = %s, want empty string", k, v)
		}
	}
	if _, ok := got["updated_at"]; ok {
		t.Error("updated_at must be omitted until the first save")
	}
}

func TestQuestionRoundTripWithoutExtra(t *testing.T) {
	q := Question{ID: "q1", Question: "What is 2+2?", QuestionType: TypeMCQ, Option2: "4", CorrectAnswer: "option2"}
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Question
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, q) {
		t.Errorf("round trip changed the record:\n got %+v\nwant %+v", back, q)
	}
}
