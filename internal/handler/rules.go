package handler

import (
	"regexp"

	"github.com/enginefarm/unreal-adaptor/internal/classify"
)

// Log vocabulary shared between the engine client and the rule tables below.
// Lines the engine client prints must keep matching these patterns.
const (
	RenderProgressPrefix = "Render Executor: Progress: "
	RenderComplete       = "Render Executor: Rendering is complete"
	RenderErrorPrefix    = "Render Executor: Error: "
	CustomProgressPrefix = "Custom Step Executor: Progress: "
	CustomCompletePrefix = "Custom Step Executor: Complete: "
	CustomErrorPrefix    = "Custom Step Executor: Error: "
	ExceptionPrefix      = "Exception: "
	WaitStart            = "Render wait start"
	WaitFinish           = "Render wait finish"
)

var (
	baseRules = &classify.Ruleset{
		Name: NameBase,
		Error: []*regexp.Regexp{
			regexp.MustCompile(`.*Exception:.*`),
			regexp.MustCompile(`.*LogPython: Error:.*`),
		},
	}

	renderRules = &classify.Ruleset{
		Name: NameRender,
		Progress: []*regexp.Regexp{
			regexp.MustCompile(`.*Render Executor: Progress: ([0-9.]+)`),
		},
		Complete: []*regexp.Regexp{
			regexp.MustCompile(`.*Render Executor: Rendering is complete`),
			regexp.MustCompile(`.* finished ([0-9]+) jobs in .*`),
		},
		Error: []*regexp.Regexp{
			regexp.MustCompile(`.*Exception:.*|.*Render Executor: Error:.*|.*LogPython: Error:.*`),
		},
	}

	customRules = &classify.Ruleset{
		Name: NameCustom,
		Progress: []*regexp.Regexp{
			regexp.MustCompile(`.*Custom Step Executor: Progress: ([0-9.]+)`),
		},
		Complete: []*regexp.Regexp{
			regexp.MustCompile(`.*Custom Step Executor: Complete`),
		},
		Error: []*regexp.Regexp{
			regexp.MustCompile(`.*Exception:.*|.*Custom Step Executor: Error:.*`),
		},
	}
)
