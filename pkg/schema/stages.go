package schema

import "sort"

// StageDescriptor describes how a PipelineState is grouped and ordered for
// display.
type StageDescriptor struct {
	State PipelineState `json:"stage"`
	Group string        `json:"group"`
	Label string        `json:"label"`
	Order int           `json:"order"`
}

var stageCatalog = map[PipelineState]StageDescriptor{
	StateIdle:                 {StateIdle, "idle", "Idle", 0},
	StateInitializing:         {StateInitializing, "setup", "Initializing", 10},
	StateExtractingRules:      {StateExtractingRules, "rules", "Extracting rules", 20},
	StateDetectingConflicts:   {StateDetectingConflicts, "rules", "Detecting conflicts", 30},
	StateResolvingConflicts:   {StateResolvingConflicts, "rules", "Resolving conflicts", 40},
	StateMergingSimilarRules:  {StateMergingSimilarRules, "rules", "Merging similar rules", 50},
	StateValidatingRules:      {StateValidatingRules, "rules", "Validating rules", 60},
	StateGeneratingPrompt:     {StateGeneratingPrompt, "prompt", "Generating candidate prompt", 70},
	StateRunningTests:         {StateRunningTests, "execution", "Running tests", 80},
	StateEvaluating:           {StateEvaluating, "evaluation", "Evaluating", 90},
	StateClusteringFailures:   {StateClusteringFailures, "evaluation", "Clustering failures", 100},
	StateReflecting:           {StateReflecting, "reflection", "Reflecting", 110},
	StateUpdatingRules:        {StateUpdatingRules, "rules", "Updating rules", 120},
	StateOptimizing:           {StateOptimizing, "optimization", "Optimizing", 130},
	StateSmartRetesting:       {StateSmartRetesting, "execution", "Smart retesting", 140},
	StateSafetyChecking:       {StateSafetyChecking, "safety", "Safety checking", 150},
	StateWaitingUser:          {StateWaitingUser, "control", "Waiting for user", 160},
	StateHumanIntervention:    {StateHumanIntervention, "control", "Human intervention", 170},
	StateCompleted:            {StateCompleted, "terminal", "Completed", 900},
	StateMaxIterationsReached: {StateMaxIterationsReached, "terminal", "Max iterations reached", 910},
	StateUserStopped:          {StateUserStopped, "terminal", "Stopped by user", 920},
	StateFailed:               {StateFailed, "terminal", "Failed", 930},
}

// Describe returns the catalog entry for s. The second return is false for
// states the catalog does not know.
func Describe(s PipelineState) (StageDescriptor, bool) {
	d, ok := stageCatalog[s]
	return d, ok
}

// KnownState reports whether s is part of the backend state catalog.
func KnownState(s PipelineState) bool {
	_, ok := stageCatalog[s]
	return ok
}

// AllStages returns every catalog entry sorted by display order.
func AllStages() []StageDescriptor {
	out := make([]StageDescriptor, 0, len(stageCatalog))
	for _, d := range stageCatalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
