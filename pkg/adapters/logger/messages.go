package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Server lifecycle
		"Server listening on %s":         "サーバーが %s で待機中",
		"Interrupted, shutting down...":  "中断されました。シャットダウン中...",
		"Browser launched (CDP port %d)": "ブラウザを起動しました (CDP ポート %d)",
		"Browser closed":                 "ブラウザを閉じました",

		// Page registry
		"Page %s created (target %s)":                "ページ %s を作成しました (ターゲット %s)",
		"Page %s deleted":                            "ページ %s を削除しました",
		"Page %s session lost, re-attaching to target %s": "ページ %s のセッションを失いました。ターゲット %s に再接続中",
		"Page %s closed by the browser, removing entry":   "ページ %s がブラウザ側で閉じられたため、エントリを削除します",
		"Console capture unavailable for page %s: %v":     "ページ %s のコンソールキャプチャが利用できません: %v",

		// Recording engine
		"Recording started on page %s":                     "ページ %s で録画を開始しました",
		"Recording stopped on page %s (%d frames, %dms)":   "ページ %s の録画を停止しました (%d フレーム / %dms)",
		"Recording aborted on page %s":                     "ページ %s の録画を中止しました",
		"Recording on page %s captured no frames":          "ページ %s の録画はフレームを取得できませんでした",
		"Video encoder unavailable, keeping raw frame sequence": "動画エンコーダーが利用できないため、生フレームを保持します",

		// Agent loop
		"Agent run %s started on page %s":              "エージェント実行 %s をページ %s で開始しました",
		"Agent run %s finished: success=%v cycles=%d":  "エージェント実行 %s が終了: success=%v cycles=%d",
		"Budget exhausted: %s":                         "バジェットを使い切りました: %s",
		"Page target lost, re-acquiring handle: %v":    "ページターゲットを失いました。ハンドルを再取得中: %v",
		"Last 3 actions identical, nudging the model":  "直近3アクションが同一のため、モデルに別アプローチを促します",
		"ANTHROPIC_API_KEY not set, agent routes disabled": "ANTHROPIC_API_KEY が未設定のため、エージェント機能を無効化します",

		// Warnings
		"Frame sampling failed: %v":         "フレームサンプリングに失敗しました: %v",
		"Failed to persist frame: %v":       "フレームの保存に失敗しました: %v",
		"Accessibility snapshot failed: %v": "アクセシビリティスナップショットの取得に失敗しました: %v",
		"Failed to stop screencast on page %s: %v": "ページ %s のスクリーンキャスト停止に失敗しました: %v",
		"Failed to close page %s: %v":              "ページ %s のクローズに失敗しました: %v",

		// Errors
		"Cycle %d error: %s": "サイクル %d でエラー: %s",
	})
}
