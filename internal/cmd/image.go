package cmd

import (
	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Work with generated background images",
	Long:  "Utilities for the background images the render pipeline produces, such as downscaling saved backgrounds for review.",
}

func init() {
	rootCmd.AddCommand(imageCmd)
}
