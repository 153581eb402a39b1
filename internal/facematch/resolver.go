package facematch

import "sort"

// Resolve finds the enrolled student whose embeddings best match query.
//
// A student's score is the maximum similarity over their embeddings and equal
// scores go to the lowest student id. Below threshold the scan is NoMatch.
// A match inside a twin group is resolved by elimination against present: a
// single unmarked member wins, several unmarked members yield AmbiguousTwins.
func Resolve(query []float32, candidates []StudentFaceProfile, threshold float64, present PresentSet) Outcome {
	best, bestScore := pickBest(query, candidates)
	if best == nil || bestScore < threshold {
		return Outcome{Kind: NoMatch, Score: bestScore}
	}

	resolved := best
	autoResolved := false
	if best.InTwinGroup() {
		unmarked := unmarkedTwins(best, candidates, present)
		switch {
		case len(unmarked) == 1:
			resolved = unmarked[0]
			autoResolved = resolved.StudentID != best.StudentID
		case len(unmarked) > 1:
			twins := make([]TwinCandidate, 0, len(unmarked))
			for _, m := range unmarked {
				twins = append(twins, TwinCandidate{ID: m.StudentID, Name: m.Name})
			}
			return Outcome{Kind: AmbiguousTwins, Score: bestScore, TwinCandidates: twins}
		}
	}

	return markOutcome(resolved, bestScore, present, autoResolved)
}

// Confirm handles the follow-up to AmbiguousTwins: the caller names the student
// and only the already-marked check runs. The id must be an enrolled twin among
// candidates, anything else is NoMatch.
func Confirm(query []float32, confirmedID string, candidates []StudentFaceProfile, present PresentSet) Outcome {
	for i := range candidates {
		c := &candidates[i]
		if c.StudentID != confirmedID {
			continue
		}
		if !c.Enrolled() || !c.InTwinGroup() {
			break
		}
		return markOutcome(c, BestScore(query, c.Embeddings), present, false)
	}
	return Outcome{Kind: NoMatch, Score: NotComparable}
}

func markOutcome(student *StudentFaceProfile, score float64, present PresentSet, autoResolved bool) Outcome {
	kind := Matched
	if present.Has(student.StudentID) {
		kind = AlreadyMarked
	}
	return Outcome{
		Kind:         kind,
		StudentID:    student.StudentID,
		StudentName:  student.Name,
		Score:        score,
		AutoResolved: autoResolved,
	}
}

// pickBest returns the enrolled candidate with the highest score.
func pickBest(query []float32, candidates []StudentFaceProfile) (*StudentFaceProfile, float64) {
	var best *StudentFaceProfile
	bestScore := NotComparable

	for i := range candidates {
		c := &candidates[i]
		if !c.Enrolled() {
			continue
		}
		score := BestScore(query, c.Embeddings)
		if score == NotComparable {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && c.StudentID < best.StudentID) {
			best = c
			bestScore = score
		}
	}
	return best, bestScore
}

// unmarkedTwins returns the enrolled members of best's twin group in the same
// section that are not yet present, sorted by id.
func unmarkedTwins(best *StudentFaceProfile, candidates []StudentFaceProfile, present PresentSet) []*StudentFaceProfile {
	var unmarked []*StudentFaceProfile
	for i := range candidates {
		c := &candidates[i]
		if !c.InTwinGroup() || c.TwinGroupID != best.TwinGroupID || c.SectionID != best.SectionID {
			continue
		}
		if !c.Enrolled() || present.Has(c.StudentID) {
			continue
		}
		unmarked = append(unmarked, c)
	}
	sort.Slice(unmarked, func(i, j int) bool {
		return unmarked[i].StudentID < unmarked[j].StudentID
	})
	return unmarked
}
