package game

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/writeright/writeright/internal/question"
	"github.com/writeright/writeright/internal/store"
)

type fakeStore struct {
	sessions  map[string]store.Row
	questions map[string]store.Row
	tasks     map[string]store.Row
	settings  map[string]store.Row
	userExp   map[string]int64

	gameData  []store.Row
	qaHistory []store.Row
	flags     []store.Row

	// staleSessionRead serves session snapshots that still claim
	// in_progress, mimicking a concurrent submit racing the read.
	staleSessionRead bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  map[string]store.Row{},
		questions: map[string]store.Row{},
		tasks:     map[string]store.Row{},
		settings:  map[string]store.Row{},
		userExp:   map[string]int64{},
	}
}

func (f *fakeStore) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	stored := store.Row{}
	for k, v := range row {
		stored[k] = v
	}
	switch table {
	case "game_sessions":
		id := uuid.New().String()
		stored["game_id"] = id
		stored["started_at"] = time.Now().Unix()
		f.sessions[id] = stored
	case "game_data":
		f.gameData = append(f.gameData, stored)
	case "flagged_questions":
		stored["flag_id"] = uuid.New().String()
		f.flags = append(f.flags, stored)
	case "user_settings":
		uid := row["user_id"].(string)
		if _, exists := f.settings[uid]; exists {
			return nil, &store.ConstraintError{Constraint: "user_settings_pkey", Table: table}
		}
		stored["updated_at"] = time.Now().Unix()
		f.settings[uid] = stored
	default:
		return nil, fmt.Errorf("unexpected insert into %s", table)
	}
	return stored, nil
}

func (f *fakeStore) InsertMany(ctx context.Context, table string, rows []store.Row) ([]store.Row, error) {
	if table != "game_qa_history" {
		return nil, fmt.Errorf("unexpected batch insert into %s", table)
	}
	f.qaHistory = append(f.qaHistory, rows...)
	return rows, nil
}

func (f *fakeStore) Select(ctx context.Context, table string, where store.Row, opts *store.SelectOpts) ([]store.Row, error) {
	if table != "questions" {
		return nil, fmt.Errorf("unexpected select from %s", table)
	}
	var out []store.Row
	for _, id := range where["question_id"].([]string) {
		if row, ok := f.questions[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeStore) SelectOne(ctx context.Context, table string, where store.Row) (store.Row, error) {
	switch table {
	case "game_sessions":
		if row, ok := f.sessions[where["game_id"].(string)]; ok {
			if f.staleSessionRead {
				snapshot := store.Row{}
				for k, v := range row {
					snapshot[k] = v
				}
				snapshot["status"] = "in_progress"
				return snapshot, nil
			}
			return row, nil
		}
	case "user_settings":
		if row, ok := f.settings[where["user_id"].(string)]; ok {
			return row, nil
		}
	default:
		return nil, fmt.Errorf("unexpected select from %s", table)
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) Update(ctx context.Context, table string, values, where store.Row) (int64, error) {
	switch table {
	case "game_sessions":
		row, ok := f.sessions[where["game_id"].(string)]
		if !ok {
			return 0, nil
		}
		if want, hasStatus := where["status"]; hasStatus && row["status"] != want {
			return 0, nil
		}
		for k, v := range values {
			row[k] = v
		}
		return 1, nil
	case "user_settings":
		row, ok := f.settings[where["user_id"].(string)]
		if !ok {
			return 0, nil
		}
		for k, v := range values {
			row[k] = v
		}
		return 1, nil
	}
	return 0, fmt.Errorf("unexpected update of %s", table)
}

func (f *fakeStore) CallProc(ctx context.Context, name string, args ...any) ([]store.Row, error) {
	switch name {
	case "update_question_stats":
		answered := args[0].([]string)
		wrongSet := map[string]bool{}
		for _, id := range args[1].([]string) {
			wrongSet[id] = true
		}
		for _, id := range answered {
			row := f.questions[id]
			row["use_count"] = store.Int64(row, "use_count") + 1
			if !wrongSet[id] {
				row["correct_count"] = store.Int64(row, "correct_count") + 1
			}
		}
		return nil, nil
	case "update_user_experience":
		uid := args[0].(string)
		f.userExp[uid] += args[1].(int64)
		return []store.Row{{
			"new_exp":   f.userExp[uid],
			"new_level": question.LevelForExp(f.userExp[uid]),
		}}, nil
	case "get_or_create_today_tasks":
		uid := args[0].(string)
		found := false
		for _, t := range f.tasks {
			if t["user_id"] == uid {
				found = true
			}
		}
		if !found {
			id := uuid.New().String()
			f.tasks[id] = store.Row{
				"task_id":    id,
				"user_id":    uid,
				"task_class": "daily",
				"task_type":  "daily_adventure",
				"title":      "每日任務: 完成一次冒險探索",
				"priority":   int64(100),
				"status":     "ongoing",
				"target":     int64(1),
				"progress":   int64(0),
				"exp":        int64(50),
				"created_at": time.Now().Unix(),
			}
		}
		var out []store.Row
		for _, t := range f.tasks {
			if t["user_id"] == uid {
				out = append(out, t)
			}
		}
		return out, nil
	case "set_task_progress":
		uid, taskID, progress := args[0].(string), args[1].(string), args[2].(int64)
		t, ok := f.tasks[taskID]
		if !ok || t["user_id"] != uid {
			return []store.Row{{"updated": false, "granted_exp": int64(0)}}, nil
		}
		t["progress"] = progress
		granted := int64(0)
		if t["status"] == "ongoing" && progress >= store.Int64(t, "target") {
			t["status"] = "completed"
			granted = store.Int64(t, "exp")
			f.userExp[uid] += granted
		}
		return []store.Row{{"updated": true, "granted_exp": granted}}, nil
	}
	return nil, fmt.Errorf("unexpected proc %s", name)
}

type fakeBlob struct{}

func (fakeBlob) SubmitURL() string { return "https://blob.example/files/upload" }

// addQuestion stores a question row and returns its rebuilt form.
func (f *fakeStore) addQuestion(t *testing.T, kind question.Kind) *question.Question {
	t.Helper()
	shape, err := question.ShapeOf(kind)
	if err != nil {
		t.Fatalf("ShapeOf(%s): %v", kind, err)
	}
	e := question.Entry{
		QuestionID:   uuid.New(),
		Kind:         kind,
		Shape:        shape,
		TargetWordID: 0x4E2D,
		Prompt:       "選出正確的字",
		CreatedAt:    time.Now().Unix(),
	}
	switch shape {
	case question.ShapeWriting:
		e.HandwriteTarget = "中"
	default:
		e.MCChoices = []question.Option{{ID: 1, Text: "中"}, {ID: 2, Text: "申"}}
		e.MCAnswers = []question.Answer{{ID: 1, Choices: []int{1}}}
	}
	f.questions[e.QuestionID.String()] = e.Row()
	q, err := e.ToQuestion("https://blob.example/files/upload")
	if err != nil {
		t.Fatalf("ToQuestion: %v", err)
	}
	return &q
}

func startSession(t *testing.T, s *Service, st *fakeStore, userID string, kinds ...question.Kind) (*Session, []*question.Question) {
	t.Helper()
	var qs []*question.Question
	for _, k := range kinds {
		qs = append(qs, st.addQuestion(t, k))
	}
	sess, err := s.Create(context.Background(), userID, qs)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess, qs
}

func TestCreateSessionKeepsQuestionOrder(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	sess, qs := startSession(t, s, st, "u1",
		question.KindFillInVocab, question.KindListening, question.KindCopyStroke)

	if sess.Status != "in_progress" {
		t.Fatalf("status = %q, want in_progress", sess.Status)
	}
	if len(sess.QuestionIDs) != 3 {
		t.Fatalf("got %d question ids, want 3", len(sess.QuestionIDs))
	}
	for i, q := range qs {
		if sess.QuestionIDs[i] != q.ID.String() {
			t.Fatalf("question %d out of order", i)
		}
	}
}

func TestSubmitMarksAndSettles(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	sess, qs := startSession(t, s, st, "u1",
		question.KindFillInVocab, question.KindFillInSentence, question.KindCopyStroke)

	verdict := true
	res, err := s.Submit(context.Background(), "u1", SubmitRequest{
		GameID: sess.GameID,
		Answers: []Answer{
			{QuestionID: qs[0].ID.String(), Choices: []int{1}}, // correct
			{QuestionID: qs[1].ID.String(), Choices: []int{2}}, // wrong
			{QuestionID: qs[2].ID.String(), WritingVerdict: &verdict},
		},
		TimeSpent:       90,
		RemainingHearts: 2,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if res.CorrectCount != 2 || res.EarnedExp != 20 {
		t.Fatalf("correct=%d earned=%d, want 2 and 20", res.CorrectCount, res.EarnedExp)
	}
	if res.NewExp != 20 {
		t.Fatalf("new exp = %d, want 20", res.NewExp)
	}
	// Completing the round also completes the daily adventure task,
	// worth another 50.
	if st.userExp["u1"] != 70 {
		t.Fatalf("stored exp = %d, want 70", st.userExp["u1"])
	}
	if got := st.sessions[sess.GameID]["status"]; got != "completed" {
		t.Fatalf("session status = %v, want completed", got)
	}
	if len(st.gameData) != 1 || len(st.qaHistory) != 3 {
		t.Fatalf("recorded %d rounds and %d answers, want 1 and 3", len(st.gameData), len(st.qaHistory))
	}

	// The wrong answer must not gain a correct count.
	wrongRow := st.questions[qs[1].ID.String()]
	if store.Int64(wrongRow, "use_count") != 1 || store.Int64(wrongRow, "correct_count") != 0 {
		t.Fatalf("wrong question stats = %v/%v, want 1/0",
			wrongRow["use_count"], wrongRow["correct_count"])
	}
	rightRow := st.questions[qs[0].ID.String()]
	if store.Int64(rightRow, "correct_count") != 1 {
		t.Fatalf("right question correct_count = %v, want 1", rightRow["correct_count"])
	}
}

func TestSubmitSettlesOnlyOnce(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	sess, qs := startSession(t, s, st, "u1", question.KindFillInVocab)

	req := SubmitRequest{
		GameID:  sess.GameID,
		Answers: []Answer{{QuestionID: qs[0].ID.String(), Choices: []int{1}}},
	}
	if _, err := s.Submit(context.Background(), "u1", req); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := s.Submit(context.Background(), "u1", req); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("second Submit error = %v, want ErrSessionClosed", err)
	}
}

func TestSubmitLosingRaceGrantsNothing(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	sess, qs := startSession(t, s, st, "u1", question.KindFillInVocab)

	req := SubmitRequest{
		GameID:  sess.GameID,
		Answers: []Answer{{QuestionID: qs[0].ID.String(), Choices: []int{1}}},
	}
	if _, err := s.Submit(context.Background(), "u1", req); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	expAfterFirst := st.userExp["u1"]

	// The duplicate reads a snapshot that still says in_progress; the
	// conditional completion must stop it before any settlement.
	st.staleSessionRead = true
	if _, err := s.Submit(context.Background(), "u1", req); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("racing Submit error = %v, want ErrSessionClosed", err)
	}
	if st.userExp["u1"] != expAfterFirst {
		t.Fatalf("exp = %d after losing race, want %d unchanged", st.userExp["u1"], expAfterFirst)
	}
	if len(st.gameData) != 1 || len(st.qaHistory) != 1 {
		t.Fatalf("recorded %d rounds and %d answers, want 1 and 1", len(st.gameData), len(st.qaHistory))
	}
	if got := store.Int64(st.questions[qs[0].ID.String()], "use_count"); got != 1 {
		t.Fatalf("use_count = %d after losing race, want 1", got)
	}
}

func TestSubmitRejectsForeignQuestion(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	sess, _ := startSession(t, s, st, "u1", question.KindFillInVocab)
	outsider := st.addQuestion(t, question.KindFillInVocab)

	_, err := s.Submit(context.Background(), "u1", SubmitRequest{
		GameID:  sess.GameID,
		Answers: []Answer{{QuestionID: outsider.ID.String(), Choices: []int{1}}},
	})
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("error = %v, want ErrUnknownQuestion", err)
	}
}

func TestSubmitHidesOtherUsersSessions(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	sess, qs := startSession(t, s, st, "u1", question.KindFillInVocab)

	_, err := s.Submit(context.Background(), "intruder", SubmitRequest{
		GameID:  sess.GameID,
		Answers: []Answer{{QuestionID: qs[0].ID.String(), Choices: []int{1}}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFlagQuestions(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	q := st.addQuestion(t, question.KindFillInVocab)

	ids, err := s.Flag(context.Background(), "u1", []FlagItem{
		{QuestionID: q.ID.String(), Reason: "wrong answer marked correct", Notes: "option 2 fits too"},
	})
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if len(ids) != 1 || ids[0] == "" {
		t.Fatalf("flag ids = %v, want one id", ids)
	}
	if got := st.flags[0]["status"]; got != "pending" {
		t.Fatalf("flag status = %v, want pending", got)
	}

	if _, err := s.Flag(context.Background(), "u1", []FlagItem{{QuestionID: q.ID.String()}}); err == nil {
		t.Fatal("expected error for a flag without a reason")
	}
	if _, err := s.Flag(context.Background(), "u1", []FlagItem{{QuestionID: "not-a-uuid", Reason: "x"}}); err == nil {
		t.Fatal("expected error for a malformed question id")
	}
}

func TestDailyTaskGrantsExpOnce(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	ctx := context.Background()

	tasks, err := s.Today(ctx, "u1")
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskType != "daily_adventure" {
		t.Fatalf("tasks = %+v, want the seeded daily adventure", tasks)
	}
	adventure := tasks[0]

	first, err := s.SetProgress(ctx, "u1", adventure.TaskID, adventure.Target)
	if err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	if first.GrantedExp != adventure.Exp {
		t.Fatalf("granted %d, want %d", first.GrantedExp, adventure.Exp)
	}

	second, err := s.SetProgress(ctx, "u1", adventure.TaskID, adventure.Target+1)
	if err != nil {
		t.Fatalf("second SetProgress: %v", err)
	}
	if second.GrantedExp != 0 {
		t.Fatalf("second completion granted %d, want 0", second.GrantedExp)
	}
	if st.userExp["u1"] != adventure.Exp {
		t.Fatalf("user exp = %d, want %d", st.userExp["u1"], adventure.Exp)
	}
}

func TestSetProgressUnknownTask(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	if _, err := s.SetProgress(context.Background(), "u1", uuid.New().String(), 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSettingsDefaultsAndUpsert(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	ctx := context.Background()

	if _, err := s.GetSettings(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound before first save", err)
	}

	saved, err := s.SaveSettings(ctx, "u1", Settings{Theme: "dark"})
	if err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if saved.Language != "zh-hk" {
		t.Fatalf("language = %q, want the zh-hk default", saved.Language)
	}

	saved, err = s.SaveSettings(ctx, "u1", Settings{Language: "en", Theme: "light"})
	if err != nil {
		t.Fatalf("second SaveSettings: %v", err)
	}
	if saved.Language != "en" || saved.Theme != "light" {
		t.Fatalf("settings = %+v, want the updated values", saved)
	}
}

func TestSaveSettingsRefreshesTimestamp(t *testing.T) {
	st := newFakeStore()
	s := New(st, fakeBlob{})
	ctx := context.Background()

	if _, err := s.SaveSettings(ctx, "u1", Settings{Theme: "dark"}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	stale := time.Now().Add(-48 * time.Hour).Unix()
	st.settings["u1"]["updated_at"] = stale

	saved, err := s.SaveSettings(ctx, "u1", Settings{Theme: "light"})
	if err != nil {
		t.Fatalf("second SaveSettings: %v", err)
	}
	if saved.UpdatedAt <= stale {
		t.Fatalf("updated_at = %d, want later than the stale %d", saved.UpdatedAt, stale)
	}
}
