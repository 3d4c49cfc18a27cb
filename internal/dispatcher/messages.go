package dispatcher

// User-facing texts.
const (
	TextYouTubeProgress   = "جاري تحميل الفيديو من YouTube... قد يستغرق الأمر بعض الوقت."
	TextInstagramProgress = "جاري استخراج رابط التحميل من Instagram..."
	TextSuccessCaption    = "✅ تم التحميل بنجاح!"
	TextInstagramNotFound = "معلش، مينفعش أجيب الفيديو دلوقتي. (قد يكون الرابط غير صالح، خاص، أو الـ API غير متوفر)."
	TextGreeting          = "مرحبًا بك في بوت التنزيل! ابعت لينك فيديو من YouTube أو Instagram بس."
	TextDeliveryFailure   = "حدث خطأ أثناء إرسال الفيديو للتيليجرام. (قد يكون حجم الفيديو كبيرًا جدًا)."
	TextGenericFailure    = "حصل خطأ غير متوقع في التحميل. جرب تاني أو ابعت لينك تاني."
)
