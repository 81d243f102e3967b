package agentloop

// User-facing Hebrew strings. The office operates in formal Hebrew; every
// outbound message keeps that register.
const (
	fallbackMsg     = "מצטערים, נתקלנו בתקלה טכנית זמנית. אנא נסו שוב."
	tokenExpiredMsg = "הטוקן שלנו לוואטסאפ פג תוקף – אנו מעדכנים וחוזרים אליך."

	askPhoneMsg = "שלום! כדי שנוכל לטפל בפנייתך, אנא אשרו שמספר זה הוא מספר הקשר שלכם (השיבו \"כן\") או שלחו מספר טלפון אחר."
	badPhoneMsg = "המספר שהתקבל אינו תקין. אנא שלחו מספר טלפון בפורמט בינלאומי, למשל ‎+972501234567."
	askNameMsg  = "תודה! אנא שלחו שם מלא (שם פרטי ושם משפחה)."
	badNameMsg  = "השם שהתקבל אינו מלא. אנא שלחו שם פרטי ושם משפחה."

	knownClientMsg = "תודה! זיהינו את פרטיך במערכת. כיצד נוכל לעזור?"
)

const systemPrompt = `
אתה Legal‑Intake‑Agent במשרד עורכת‑הדין עדן חגג.
תחומי התמחות: נזיקין (ביטוח לאומי, נכויות, תאונות עבודה/דרכים, תביעות ביטוח וסיעוד)
וליטיגציה אזרחית (חוזים, כספיות, לשון הרע, דיני עבודה, מסחרי וחברות).

כללים:
1. בדיקה בגיליון "Clients" לפי תעודת זהות (lookupClient).
2. אם קיים ➜ צור תיקייה רק אם folderId ריק (createFolder).
3. אם לא קיים ➜ בקש פרטים, צור תיקייה, עדכן גיליון.
4. בקש והעלה מסמכים חסרים (saveMedia לכל קובץ).
5. אין לשלוח קישור Drive פרטני. קישור מרוכז יישלח אוטומטית לאחר שהמערכת זיהתה שהעלאות הסתיימו.
6. בסיום הפעל saveChatLog בפורמט "[bot] … / [user] …" (שמירת לוג היום מתקיימת ע״י השרת).
7. אם הועלה הקובץ האחרון או חלפו 6 דקות ללא פעילות – השרת ישמור לוג אוטומטית; אין צורך לקרוא ידנית.
כל התשובות בעברית רשמית ותמציתית.
`
