package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/OCAP2/rigsync/internal/config"
	"github.com/OCAP2/rigsync/internal/rig"
)

var flagPrefabOut string

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the joint topology and node names the synchronizer writes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := printTables(cmd.OutOrStdout()); err != nil {
			return err
		}
		if flagPrefabOut != "" {
			return writeDefaultPrefab(flagPrefabOut)
		}
		return nil
	},
}

func init() {
	tablesCmd.Flags().StringVar(&flagPrefabOut, "prefab", "", "write the built-in humanoid prefab as JSON to this path")
}

// printTables writes one line per topology segment, then every node name.
func printTables(w io.Writer) error {
	fmt.Fprintln(w, "# segments (parent -> child: parent node -> child node)")
	for _, seg := range rig.Segments() {
		pn, _ := rig.NodeName(seg.Parent)
		cn, _ := rig.NodeName(seg.Child)
		if _, err := fmt.Fprintf(w, "%s -> %s: %s -> %s\n", seg.Parent, seg.Child, pn, cn); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, "# nodes")
	for _, n := range rig.NodeNames() {
		if _, err := fmt.Fprintln(w, n); err != nil {
			return err
		}
	}
	return nil
}

func writeDefaultPrefab(path string) error {
	p, err := loadAsset(config.AssetConfig{Name: "humanoid"})
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
