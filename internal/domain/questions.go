package domain

// PickQuestions returns QuestionsPerGame questions from pool in the order given by perm,
// which must behave like rand.Perm. The returned slice does not share memory with pool.
func PickQuestions(pool []Question, perm func(n int) []int) ([]Question, error) {
	if len(pool) < QuestionsPerGame {
		return nil, ErrNotEnoughQuestions
	}
	idx := perm(len(pool))
	picked := make([]Question, 0, QuestionsPerGame)
	for _, i := range idx[:QuestionsPerGame] {
		q := pool[i]
		q.CorrectAnswers = append([]string(nil), q.CorrectAnswers...)
		picked = append(picked, q)
	}
	return picked, nil
}
