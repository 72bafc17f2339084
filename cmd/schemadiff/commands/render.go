package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"

	"github.com/David-Botos/schemadiff/pkg/model"
	"github.com/David-Botos/schemadiff/pkg/pipeline"
)

// renderer draws the event feed of one run and answers its confirmation request
type renderer struct {
	ctrl    *pipeline.Controller
	verbose bool
	// Asked with the pending script; true applies it
	confirm func(script string) (bool, error)
	spinner *pterm.SpinnerPrinter
}

func newRenderer(ctrl *pipeline.Controller, verbose bool) *renderer {
	return &renderer{ctrl: ctrl, verbose: verbose, confirm: confirmScript}
}

// run consumes events until the run completes. Cancelling ctx cancels the run.
func (r *renderer) run(ctx context.Context) (pipeline.Outcome, error) {
	interrupt := ctx.Done()
	for {
		select {
		case <-interrupt:
			interrupt = nil
			r.stopSpinner()
			pterm.Warning.Println("Cancelling...")
			if err := r.ctrl.Cancel(true); err != nil {
				return pipeline.Outcome{}, err
			}

		case e, ok := <-r.ctrl.Events():
			if !ok {
				return pipeline.Outcome{}, errors.New("event feed closed before the run completed")
			}
			if done, outcome := r.handle(e); done {
				return outcome, nil
			}
		}
	}
}

func (r *renderer) handle(e pipeline.Event) (bool, pipeline.Outcome) {
	switch e.Type {
	case pipeline.EventStageStarted:
		r.stopSpinner()
		r.spinner, _ = pterm.DefaultSpinner.Start(e.Stage.String())

	case pipeline.EventProgressUpdated:
		if r.spinner != nil {
			r.spinner.UpdateText(progressLine(e))
		}

	case pipeline.EventDiffOperationClassified:
		if r.verbose && e.Operation != nil {
			r.printAbove(func() {
				pterm.Printfln("  %-6s %s", e.Operation.Kind, e.Operation.Description)
			})
		}

	case pipeline.EventErrorOccurred:
		if e.Error != nil && !e.Error.Fatal {
			r.printAbove(func() {
				pterm.Warning.Println(e.Error.Message)
				if e.Error.Detail != "" {
					pterm.Printfln("  %s", e.Error.Detail)
				}
				if e.Error.Command != "" {
					pterm.Printfln("  %s", e.Error.Command)
				}
			})
		}

	case pipeline.EventStageCompleted:
		if r.spinner != nil {
			r.spinner.Success(e.Stage.String())
			r.spinner = nil
		}

	case pipeline.EventConfirmationRequested:
		r.stopSpinner()
		r.renderSummary()
		pterm.DefaultSection.Println("Reconciliation script")
		pterm.Println(e.Script)

		proceed, err := r.confirm(e.Script)
		if err != nil {
			pterm.Error.Printfln("Confirmation failed: %v", err)
			proceed = false
		}
		if err := r.ctrl.Confirm(proceed); err != nil {
			pterm.Error.Println(err)
		}

	case pipeline.EventPipelineCompleted:
		r.stopSpinner()
		if e.Outcome == nil {
			return true, pipeline.Outcome{Kind: pipeline.OutcomeFailed, Message: e.Message}
		}
		r.renderOutcome(*e.Outcome)
		return true, *e.Outcome
	}
	return false, pipeline.Outcome{}
}

func (r *renderer) renderSummary() {
	data := pterm.TableData{{"Operation", "Count"}}
	for _, kind := range model.DiffKinds {
		data = append(data, []string{kind.String(), strconv.Itoa(r.ctrl.DiffTypeCount(kind))})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func (r *renderer) renderOutcome(outcome pipeline.Outcome) {
	switch outcome.Kind {
	case pipeline.OutcomeSuccess:
		if outcome.Script == "" {
			pterm.Info.Println(outcome.Message)
			return
		}
		pterm.Success.Println(outcome.Message)
		if metrics, ok := r.ctrl.Metrics(); ok && metrics.Executed+metrics.IgnoredErrors > 0 {
			pterm.Printfln("  %d statements executed, %d errors ignored, %s",
				metrics.Executed, metrics.IgnoredErrors, metrics.Duration.Round(time.Millisecond))
		}
	case pipeline.OutcomeCancelled:
		pterm.Warning.Println(outcome.Message)
	case pipeline.OutcomeFailed:
		// The message itself is returned as the command's error
		if outcome.Error != nil && outcome.Error.Detail != "" {
			pterm.Printfln("  %s", outcome.Error.Detail)
		}
	}
}

// printAbove writes lines without tearing the spinner
func (r *renderer) printAbove(write func()) {
	if r.spinner == nil {
		write()
		return
	}
	text := r.spinner.Text
	_ = r.spinner.Stop()
	write()
	r.spinner, _ = pterm.DefaultSpinner.Start(text)
}

func (r *renderer) stopSpinner() {
	if r.spinner != nil {
		_ = r.spinner.Stop()
		r.spinner = nil
	}
}

func progressLine(e pipeline.Event) string {
	line := fmt.Sprintf("[%3d%%] %s", e.Progress, e.Message)
	if e.Category != "" {
		line += " (" + string(e.Category) + ")"
	}
	return line
}

func confirmScript(string) (bool, error) {
	return pterm.DefaultInteractiveConfirm.
		WithDefaultValue(false).
		Show("Apply this script to the database?")
}
