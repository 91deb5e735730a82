package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/pagecache"
)

func newDocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doc",
		Short: "Print the document metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			doc, err := e.api.Document(cmd.Context())
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			e.log.Debug("document metadata read", pagecache.Fields{"id": doc.ID, "pages": doc.TotalPages})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", doc.ID)
			fmt.Fprintf(out, "title:  %s\n", doc.Title)
			fmt.Fprintf(out, "pages:  %d\n", doc.TotalPages)
			return nil
		},
	}
}
