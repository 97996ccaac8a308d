package repository

import "errors"

// ErrNotFound は更新・削除対象のレコードが存在しないことを表す。
// 取得系メソッドは代わりにnilを返す。
var ErrNotFound = errors.New("record not found")
