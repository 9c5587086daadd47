// Package server は、カメラアプリの画面とHTTP APIを提供します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// WebSocketによる状態配信、埋め込みページの配信を担当します。
//
// 責務:
//   - 録画の開始・停止、写真撮影のAPI
//   - 写真・動画のダウンロード
//   - MJPEGによるライブプレビュー
//   - WebSocketによる録画状態（経過時間など）のプッシュ
//
// 仕様:
//   - HTTPルーティングはginを使用
//   - WebSocketはgorilla/websocketを使用
//   - API定義は openapi.yaml に記述し、kin-openapi で検証して配信する
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
package server
