package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/boq-match/internal/core/matching"
)

// CatalogListAction は価格カタログの一覧を表示するコマンドのアクション
func CatalogListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	entries, err := appCtx.Container.Catalog.ListCatalog(ctx)
	if err != nil {
		return fmt.Errorf("カタログ取得に失敗: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("カタログにエントリがありません")
		return nil
	}

	fmt.Printf("カタログエントリ数: %d\n\n", len(entries))
	for i, entry := range entries {
		fmt.Printf("[%d] %s\n", i+1, entry.Description)
		fmt.Printf("    ID:    %s\n", entry.ID)
		fmt.Printf("    単価:  %.2f\n", entry.Rate)
		if entry.Unit != "" {
			fmt.Printf("    単位:  %s\n", entry.Unit)
		}
		if entry.FullContext != "" {
			fmt.Printf("    文脈:  %s\n", entry.FullContext)
		}
	}

	return nil
}

// CatalogAddAction は価格カタログにエントリを追加するコマンドのアクション
func CatalogAddAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	description := cmd.String("description")
	rate := cmd.Float("rate")
	unit := cmd.String("unit")
	fullContext := cmd.String("context")

	if rate <= 0 {
		return fmt.Errorf("単価は正の値で指定してください: %v", rate)
	}

	slog.Info("カタログエントリを追加", "description", description, "rate", rate)

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	entry := &matching.CatalogEntry{
		ID:          uuid.New(),
		Description: description,
		Rate:        rate,
		Unit:        unit,
		FullContext: fullContext,
	}

	if err := appCtx.Container.Catalog.CreatePriceItem(ctx, entry); err != nil {
		return fmt.Errorf("カタログ追加に失敗: %w", err)
	}

	fmt.Printf("追加しました: %s\n", entry.ID)
	return nil
}
