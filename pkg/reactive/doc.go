// Package reactive содержит примитивы наблюдаемого состояния, на которых
// построены контроллеры медиа состояний.
//
// Cell хранит значение с одним писателем и многими читателями:
//   - наблюдатели (Watch) вызываются синхронно и последовательно при каждом изменении
//   - ожидающие (When) видят новое значение только после завершения наблюдателей
//   - подписчики (Subscribe) получают только значения, установленные после подписки
//
// Наблюдатель не должен изменять ту же ячейку, из которой он вызван.
package reactive
