package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandInspect はユーザーレコードを正規化・デコードして報告することを示す。
	CommandInspect Command = "inspect"
	// CommandNormalize は正規化後のドキュメントを出力することを示す。
	CommandNormalize Command = "normalize"
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// コンテナのヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を解析する。
// 先頭がサブコマンド名でない場合はCommandInspectとみなし、引数はすべて入力指定として残す。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandInspect, nil
	}

	switch Command(args[0]) {
	case CommandInspect, CommandNormalize, CommandServe, CommandHealthcheck:
		return Command(args[0]), args[1:]
	default:
		return CommandInspect, args
	}
}
