package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/nlink/pkg/artifact"
)

// publish writes artifacts through the configured sink as one unit and
// prints where they went.
func (c *CLI) publish(cmd *cobra.Command, outDir string, arts ...*artifact.Artifact) error {
	ctx := cmd.Context()
	sink, release, err := c.newPublisher(ctx, outDir)
	if err != nil {
		return err
	}
	defer release()

	spinner := newSpinnerWithContext(ctx, "Publishing...")
	spinner.Start()
	locs, err := artifact.PublishAll(ctx, sink, arts, func(_ int, a *artifact.Artifact) {
		spinner.SetMessage("Publishing " + string(a.Provenance.Kind) + "...")
	})
	spinner.Stop()
	if err != nil {
		return err
	}
	for _, loc := range locs {
		printFile(loc)
	}
	return nil
}
