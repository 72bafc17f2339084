package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/importer"
)

var databasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List the databases reachable on the server",
	RunE:  runDatabases,
}

func runDatabases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, err := connector.NewConnectorFactory(logger).Open(cmd.Context(), cfg.Connection)
	if err != nil {
		return err
	}
	defer conn.Close()

	names, err := importer.ListDatabases(cmd.Context(), conn)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		pterm.Warning.Println("No databases found")
		return nil
	}

	items := make([]pterm.BulletListItem, 0, len(names))
	for _, name := range names {
		items = append(items, pterm.BulletListItem{Level: 0, Text: name})
	}
	pterm.DefaultSection.Printfln("Databases on %s", cfg.Connection.Target())
	return pterm.DefaultBulletList.WithItems(items).Render()
}
